package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/eigerco/bramble/internal/crypto"
	"github.com/eigerco/bramble/internal/fragment"
	"github.com/eigerco/bramble/internal/parachain"
	"github.com/eigerco/bramble/internal/session"
	"github.com/eigerco/bramble/internal/statedist"
	"github.com/eigerco/bramble/internal/store"
	"github.com/eigerco/bramble/pkg/db/pebble"
	"github.com/eigerco/bramble/pkg/log"
	"github.com/eigerco/bramble/pkg/network/peer"
)

type FullValidatorInfo struct {
	Index      uint   `json:"index"`
	IP         string `json:"address"`
	Port       int    `json:"port"`
	Ed25519Pub string `json:"ed25519_public_key"`
	Ed25519Prv string `json:"ed25519_private_key"`
}

func loadFullValidatorInfos(filename string) ([]FullValidatorInfo, error) {
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	var validators []FullValidatorInfo
	if err := json.Unmarshal(jsonData, &validators); err != nil {
		return nil, fmt.Errorf("error unmarshaling JSON: %w", err)
	}

	return validators, nil
}

// buildSession assembles the session info from the validator file, packing
// validators into fixed-size backing groups.
func buildSession(vs []FullValidatorInfo, groupSize int) (*session.Info, error) {
	keys := make([]crypto.ValidatorKey, len(vs))
	for i, v := range vs {
		pub, err := hex.DecodeString(v.Ed25519Pub)
		if err != nil {
			return nil, fmt.Errorf("invalid public key for validator %d: %w", i, err)
		}
		keys[i] = crypto.ValidatorKey{Ed25519: ed25519.PublicKey(pub)}
	}

	var groups [][]parachain.ValidatorIndex
	for start := 0; start < len(keys); start += groupSize {
		end := start + groupSize
		if end > len(keys) {
			end = len(keys)
		}
		group := make([]parachain.ValidatorIndex, 0, end-start)
		for i := start; i < end; i++ {
			group = append(group, parachain.ValidatorIndex(i))
		}
		groups = append(groups, group)
	}

	return session.NewInfo(1, keys, groups)
}

// main starts a statement-distribution node.
// go run main.go -index 0
func main() {
	ctx := context.Background()
	index := flag.String("index", "", "validator index")
	validatorsFile := flag.String("validators", "test_validators.json", "validator set file")
	chainHash := flag.String("chain", "12345678", "8-nibble chain identifier")
	dataDir := flag.String("data", "data", "database directory")
	groupSize := flag.Int("group-size", 3, "validators per backing group")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	level, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Init(log.Options{LogLevel: level, Type: log.ConsoleLogger})

	if *index == "" {
		log.Root.Fatal().Msg("validator index is required")
	}
	vs, err := loadFullValidatorInfos(*validatorsFile)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("failed to load validators")
	}
	i, err := strconv.Atoi(*index)
	if err != nil || i < 0 || i >= len(vs) {
		log.Root.Fatal().Str("index", *index).Msg("invalid validator index")
	}

	prv, err := hex.DecodeString(vs[i].Ed25519Prv)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("invalid private key")
	}
	pub, err := hex.DecodeString(vs[i].Ed25519Pub)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("invalid public key")
	}

	info, err := buildSession(vs, *groupSize)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("failed to build session")
	}

	kv, err := pebble.NewKVStore(*dataDir)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("failed to open database")
	}
	defer kv.Close()

	localIndex := parachain.ValidatorIndex(i)
	listenAddr := net.JoinHostPort(vs[i].IP, strconv.Itoa(vs[i].Port))

	node, err := peer.NewNode(ctx, peer.Config{
		Keys: peer.ValidatorKeys{
			EdPrv: ed25519.PrivateKey(prv),
			EdPub: ed25519.PublicKey(pub),
		},
		ListenAddr: listenAddr,
		ChainHash:  *chainHash,
		Session:    info,
		Coordinator: statedist.Config{
			LocalValidator: &localIndex,
		},
		Store:      store.NewCandidates(kv),
		Membership: fragment.NewChain(fragment.DefaultMaxDepth),
	})
	if err != nil {
		log.Root.Fatal().Err(err).Msg("failed to create node")
	}

	if err := node.Start(); err != nil {
		log.Root.Fatal().Err(err).Msg("failed to start node")
	}
	log.Root.Info().Str("listen_addr", listenAddr).Int("validator", i).Msg("node started")
	select {}
}
