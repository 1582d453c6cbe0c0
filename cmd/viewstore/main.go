// Command viewstore inspects and mutates a key-value store through the same
// contract the view layer uses. Keys and values are passed as hex on the
// command line.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/eigerco/viewstore/pkg/log"
	"github.com/eigerco/viewstore/pkg/serialization"
	"github.com/eigerco/viewstore/pkg/serialization/codec"
	"github.com/eigerco/viewstore/pkg/store"
	"github.com/eigerco/viewstore/pkg/store/bolt"
	"github.com/eigerco/viewstore/pkg/store/leveldb"
	"github.com/eigerco/viewstore/pkg/store/pebble"
	"github.com/eigerco/viewstore/pkg/view"
)

type scanEntry struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

func main() {
	// Default logging until flags are parsed; openStore re-initializes
	// with the requested level and format.
	log.Init(log.Options{LogLevel: zerolog.InfoLevel, Type: log.ConsoleLogger})

	app := &cli.Command{
		Name:  "viewstore",
		Usage: "inspect and mutate a viewstore key-value backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend",
				Value: "pebble",
				Usage: "storage backend: pebble, leveldb or bolt",
			},
			&cli.StringFlag{
				Name:  "path",
				Value: "viewstore.db",
				Usage: "path of the database",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level: trace, debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "emit JSON logs instead of console output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "print the value stored at a key",
				ArgsUsage: "<key-hex>",
				Action:    runGet,
			},
			{
				Name:      "put",
				Usage:     "store raw value bytes at a key",
				ArgsUsage: "<key-hex> <value-hex>",
				Action:    runPut,
			},
			{
				Name:      "delete",
				Usage:     "delete a single key",
				ArgsUsage: "<key-hex>",
				Action:    runDelete,
			},
			{
				Name:      "delete-prefix",
				Usage:     "delete every key under a prefix",
				ArgsUsage: "<prefix-hex>",
				Action:    runDeletePrefix,
			},
			{
				Name:      "keys",
				Usage:     "list keys under a prefix in ascending order",
				ArgsUsage: "[prefix-hex]",
				Action:    runKeys,
			},
			{
				Name:      "scan",
				Usage:     "list key-value pairs under a prefix as JSON lines",
				ArgsUsage: "[prefix-hex]",
				Action:    runScan,
			},
			{
				Name:      "digest",
				Usage:     "print the blake2b digest of a key subtree",
				ArgsUsage: "[prefix-hex]",
				Action:    runDigest,
			},
			{
				Name:      "export",
				Usage:     "write every key-value pair under a prefix to a binary snapshot file",
				ArgsUsage: "<file> [prefix-hex]",
				Action:    runExport,
			},
			{
				Name:      "import",
				Usage:     "load key-value pairs from a binary snapshot file",
				ArgsUsage: "<file>",
				Action:    runImport,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.CLI.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func initLogging(cmd *cli.Command) error {
	level, err := log.ParseLogLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	loggerType := log.ConsoleLogger
	if cmd.Bool("log-json") {
		loggerType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: loggerType})
	return nil
}

func openStore(cmd *cli.Command) (store.Store, io.Closer, error) {
	if err := initLogging(cmd); err != nil {
		return nil, nil, err
	}

	backend := cmd.String("backend")
	path := cmd.String("path")
	log.CLI.Debug().Str("backend", backend).Str("path", path).Msg("opening store")

	switch backend {
	case "pebble":
		s, err := pebble.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "leveldb":
		s, err := leveldb.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "bolt":
		s, err := bolt.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func hexArg(cmd *cli.Command, i int) ([]byte, error) {
	raw, err := hex.DecodeString(cmd.Args().Get(i))
	if err != nil {
		return nil, fmt.Errorf("argument %d is not valid hex: %w", i, err)
	}
	return raw, nil
}

func runGet(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("expected exactly one key argument")
	}
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	key, err := hexArg(cmd, 0)
	if err != nil {
		return err
	}
	value, err := s.ReadKeyBytes(ctx, key)
	if err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("key %x not found", key)
	}
	fmt.Printf("%x\n", value)
	return nil
}

func runPut(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return errors.New("expected key and value arguments")
	}
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	key, err := hexArg(cmd, 0)
	if err != nil {
		return err
	}
	value, err := hexArg(cmd, 1)
	if err != nil {
		return err
	}

	batch, err := store.Build(func(b *store.Batch) error {
		b.PutBytes(key, value)
		return nil
	})
	if err != nil {
		return err
	}
	return s.WriteBatch(ctx, batch.Simplify())
}

func runDelete(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("expected exactly one key argument")
	}
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	key, err := hexArg(cmd, 0)
	if err != nil {
		return err
	}

	batch, err := store.Build(func(b *store.Batch) error {
		b.Delete(key)
		return nil
	})
	if err != nil {
		return err
	}
	return s.WriteBatch(ctx, batch.Simplify())
}

func runDeletePrefix(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("expected exactly one prefix argument")
	}
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	prefix, err := hexArg(cmd, 0)
	if err != nil {
		return err
	}
	log.CLI.Info().Hex("prefix", prefix).Msg("deleting prefix")

	batch, err := store.Build(func(b *store.Batch) error {
		b.DeletePrefix(prefix)
		return nil
	})
	if err != nil {
		return err
	}
	return s.WriteBatch(ctx, batch.Simplify())
}

func runKeys(ctx context.Context, cmd *cli.Command) error {
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	var prefix []byte
	if cmd.Args().Len() > 0 {
		if prefix, err = hexArg(cmd, 0); err != nil {
			return err
		}
	}

	keys, err := s.FindKeysByPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Printf("%x\n", key)
	}
	return nil
}

func runScan(ctx context.Context, cmd *cli.Command) error {
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	var prefix []byte
	if cmd.Args().Len() > 0 {
		if prefix, err = hexArg(cmd, 0); err != nil {
			return err
		}
	}

	kvs, err := s.FindKeyValuesByPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	serializer := serialization.NewSerializer(codec.NewJSONCodec())
	for _, kv := range kvs {
		line, err := serializer.Encode(scanEntry{
			Key:   hex.EncodeToString(kv.Key),
			Value: hex.EncodeToString(kv.Value),
		})
		if err != nil {
			return err
		}
		fmt.Println(string(line))
	}
	return nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return errors.New("expected a snapshot file argument")
	}
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	var prefix []byte
	if cmd.Args().Len() > 1 {
		if prefix, err = hexArg(cmd, 1); err != nil {
			return err
		}
	}

	kvs, err := s.FindKeyValuesByPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	serializer := serialization.NewSerializer(codec.NewBinaryCodec())
	data, err := serializer.Encode(kvs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	file := cmd.Args().Get(0)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	log.CLI.Info().Int("pairs", len(kvs)).Str("file", file).Msg("snapshot written")
	return nil
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("expected a snapshot file argument")
	}
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	data, err := os.ReadFile(cmd.Args().Get(0))
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	serializer := serialization.NewSerializer(codec.NewBinaryCodec())
	var kvs []store.KeyValue
	if err := serializer.Decode(data, &kvs); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	batch, err := store.Build(func(b *store.Batch) error {
		for _, kv := range kvs {
			b.PutBytes(kv.Key, kv.Value)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.WriteBatch(ctx, batch.Simplify()); err != nil {
		return err
	}
	log.CLI.Info().Int("pairs", len(kvs)).Msg("snapshot loaded")
	return nil
}

func runDigest(ctx context.Context, cmd *cli.Command) error {
	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	var prefix []byte
	if cmd.Args().Len() > 0 {
		if prefix, err = hexArg(cmd, 0); err != nil {
			return err
		}
	}

	vctx := view.NewStoreContext[struct{}](s, nil, struct{}{})
	digest, err := view.SubtreeDigest(ctx, vctx, prefix)
	if err != nil {
		return err
	}
	fmt.Println(digest)
	return nil
}
