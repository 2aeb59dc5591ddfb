package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/config"
	"escrowScope/internal/escrow"
	"escrowScope/internal/model"
	"escrowScope/internal/storage"
	"escrowScope/internal/storage/postgres"
)

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().StringSlice("event", nil, "schema keys to decode (comma-separated), empty means all")
	decodeCmd.Flags().String("policy", "fail-fast", "on a bad log: fail-fast or skip-invalid")
	decodeCmd.Flags().Int("workers", 0, "decode workers, 0 means GOMAXPROCS")
	decodeCmd.Flags().Int("batch-size", 1000, "logs decoded per batch")
	decodeCmd.Flags().String("pg-dsn", "", "optional Postgres DSN to store decoded events")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return decodeCmd
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	policy, err := config.ParsePolicy(cfg.Policy)
	if err != nil {
		return err
	}
	decoder, err := escrow.NewDecoder(escrow.DecoderConfig{Keys: cfg.Events})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonlSink, err := storage.NewJSONLEventSink(cfg.Out, cfg.Errors)
	if err != nil {
		return err
	}
	// Closed explicitly below; this only covers early returns.
	defer jsonlSink.Close()

	sinks := multiSink{jsonlSink}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Strings("events", cfg.Events),
		zap.String("policy", cfg.Policy),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	d := &batchDecoder{
		decoder: decoder,
		opts:    escrow.BatchOptions{Policy: policy, Workers: cfg.Workers},
		sink:    sinks,
	}

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total int
	records := make([]model.LogRecord, 0, cfg.BatchSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			d.failed++
			if err := sinks.PutDecodeErrors(ctx, []model.DecodeError{{Error: err.Error()}}); err != nil {
				return err
			}
			continue
		}
		records = append(records, record)

		if len(records) >= cfg.BatchSize {
			if err := d.flush(ctx, records); err != nil {
				return err
			}
			records = records[:0]
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	if err := d.flush(ctx, records); err != nil {
		return err
	}
	if err := jsonlSink.Close(); err != nil {
		return fmt.Errorf("close decode output: %w", err)
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", d.decoded),
		zap.Int("skipped", d.skipped),
		zap.Int("failed", d.failed),
	)

	return nil
}

type batchDecoder struct {
	decoder *escrow.Decoder
	opts    escrow.BatchOptions
	sink    storage.EventSink

	decoded, skipped, failed int
}

func (b *batchDecoder) flush(ctx context.Context, records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	var errRows []model.DecodeError
	raws := make([]model.RawLog, 0, len(records))
	origin := make([]model.LogRecord, 0, len(records))
	for _, record := range records {
		raw, err := record.RawLog()
		if err != nil {
			b.failed++
			errRows = append(errRows, decodeErrorFromRecord(record, err))
			continue
		}
		raws = append(raws, raw)
		origin = append(origin, record)
	}

	decoded, failures, err := escrow.DecodeBatch(ctx, b.decoder, raws, b.opts)
	if err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	events := make([]model.TypedEvent, 0, len(decoded))
	for _, d := range decoded {
		record := origin[d.Index]
		events = append(events, escrow.TypedEvent(record.ChainID, d.Log, record.Timestamp, d.Schema, d.Event))
	}
	for _, f := range failures {
		errRows = append(errRows, decodeErrorFromRecord(origin[f.Index], f.Err))
	}

	b.decoded += len(events)
	b.failed += len(failures)
	b.skipped += len(raws) - len(decoded) - len(failures)

	if err := b.sink.PutEvents(ctx, events); err != nil {
		return err
	}
	return b.sink.PutDecodeErrors(ctx, errRows)
}

// multiSink fans decoded output out to every configured sink.
type multiSink []storage.EventSink

func (m multiSink) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	for _, sink := range m {
		if err := sink.PutEvents(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error {
	for _, sink := range m {
		if err := sink.PutDecodeErrors(ctx, errs); err != nil {
			return err
		}
	}
	return nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Kind:        escrow.KindName(err),
		Error:       err.Error(),
	}
}
