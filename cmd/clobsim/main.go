// clobsim runs (or replays) a deterministic limit-order-book trading
// simulation session. Subcommands mirror the teacher's
// cmd/client.go-style flag usage: no cobra/viper anywhere in the
// retrieval pack, so plain stdlib flag with a subcommand dispatch is
// the idiom to continue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exchangesim/internal/bots"
	"exchangesim/internal/common"
	"exchangesim/internal/config"
	"exchangesim/internal/journal"
	"exchangesim/internal/sim"
)

const (
	exitOK           = 0
	exitBadConfig    = 2
	exitJournalIOErr = 3
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitBadConfig)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "replay":
		err = replayCmd(os.Args[2:])
	default:
		usage()
		os.Exit(exitBadConfig)
	}

	if err == nil {
		os.Exit(exitOK)
	}
	log.Error().Err(err).Msg("clobsim exiting")
	if errors.Is(err, common.ErrJournal) {
		os.Exit(exitJournalIOErr)
	}
	os.Exit(exitBadConfig)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: clobsim run --seed S [--preset NAME] [--config path] --journal path [--ticks N]")
	fmt.Fprintln(os.Stderr, "       clobsim replay --journal path [--until tick]")
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	seed := fs.Int64("seed", 1, "deterministic RNG seed for this session")
	presetName := fs.String("preset", "MEDIUM", "difficulty preset: EASY, MEDIUM, HARD, AXXELA")
	configPath := fs.String("config", "", "optional YAML override file layered over the preset")
	journalPath := fs.String("journal", "session.jsonl", "path to the append-only session journal")
	ticks := fs.Int64("ticks", 0, "stop after this many ticks (0 = run until interrupted)")
	interval := fs.Duration("tick-interval", 100*time.Millisecond, "wall-clock interval between ticks")
	if err := fs.Parse(args); err != nil {
		return err // flag.ContinueOnError already printed usage
	}

	cfg := config.Preset(*presetName)
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return fmt.Errorf("config: reading %s: %w", *configPath, err)
		}
		cfg, err = config.Load(cfg, raw)
		if err != nil {
			return err
		}
	}

	jnl, err := journal.Create(*journalPath)
	if err != nil {
		return err
	}
	defer jnl.Close()

	runID := uuid.NewString()
	if err := jnl.WriteHeader(journal.Header{
		RunID:     runID,
		Seed:      *seed,
		Config:    cfg,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	s := newSession(cfg, *seed, jnl)

	log.Info().Str("run_id", runID).Str("preset", *presetName).Int64("seed", *seed).Msg("session starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	loop := sim.NewRunLoop(s)
	loop.Start(*interval, *ticks)

	select {
	case <-ctx.Done():
		if err := loop.Stop(); err != nil {
			return err
		}
	case err := <-waitAsync(loop):
		if err != nil {
			return err
		}
	}

	if err := s.Fatal(); err != nil {
		return err
	}
	for _, tv := range s.Leaderboard() {
		fmt.Printf("%-12s position=%-6d cash=%-10d pnl=%-10d toxicity=%.3f\n",
			tv.TraderID, tv.Position, tv.Cash, tv.PnL, tv.Toxicity)
	}
	return nil
}

// newSession wires one Simulator with the fixed trading-floor roster:
// a human operator and three scripted bots. Both run and replay build
// a session through this one function, so replaying a journal
// reconstructs exactly the roster it was recorded with.
func newSession(cfg config.Config, seed int64, jnl *journal.Writer) *sim.Simulator {
	s := sim.New(cfg, seed, jnl)
	s.RegisterTrader("operator", false, 1_000_000)
	s.RegisterTrader("mm-1", true, 1_000_000)
	s.RegisterTrader("noise-1", true, 1_000_000)
	s.RegisterTrader("momentum-1", true, 1_000_000)
	s.RegisterBot(bots.NewMarketMaker("mm-1", 4, 10, 2, 40), bots.Latency{BaseLatency: 1, Jitter: 2})
	s.RegisterBot(bots.NewNoiseTrader("noise-1", 5, 8, 15, s.RNG()), bots.Latency{BaseLatency: 1, Jitter: 5})
	s.RegisterBot(bots.NewMomentum("momentum-1", 5, 5, 1), bots.Latency{BaseLatency: 1, Jitter: 3})
	return s
}

func waitAsync(loop *sim.RunLoop) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- loop.Wait() }()
	return ch
}

// journalHeader mirrors journal.Header but decodes Config into the
// concrete config.Config shape instead of journal.Header's untyped
// any, so replay can hand it straight to sim.New.
type journalHeader struct {
	RunID     string        `json:"run_id"`
	Seed      int64         `json:"seed"`
	Config    config.Config `json:"config"`
	StartedAt string        `json:"started_at"`
}

// replayCmd reconstructs a fresh Simulator from a journal's header and
// command records and drives it tick-by-tick exactly as the recorded
// session ran, per §6: event and snapshot records are informational
// only and are never replayed, just regenerated. Every tick's snapshot
// record is the boundary at which that tick's accepted commands (if
// any) are submitted and the tick is advanced.
func replayCmd(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	journalPath := fs.String("journal", "session.jsonl", "path to the journal to replay")
	until := fs.Int64("until", 0, "stop replaying after this tick (0 = replay to end)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, closer, err := journal.Open(*journalPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	headerRec, err := r.Next()
	if err != nil {
		return fmt.Errorf("replay: reading header: %w", err)
	}
	if headerRec.Type != journal.RecordHeader {
		return fmt.Errorf("replay: %s: first record is %q, not %q", *journalPath, headerRec.Type, journal.RecordHeader)
	}
	var hdr journalHeader
	if err := json.Unmarshal(headerRec.Payload, &hdr); err != nil {
		return fmt.Errorf("replay: decoding header: %w", err)
	}

	s := newSession(hdr.Config, hdr.Seed, nil)
	log.Info().Str("run_id", hdr.RunID).Int64("seed", hdr.Seed).Msg("replaying session")

	var pending []sim.Command
	ticks := 0
	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if *until > 0 && int64(rec.Tick) > *until {
			break
		}
		switch rec.Type {
		case journal.RecordCommand:
			var cmd sim.Command
			if err := json.Unmarshal(rec.Payload, &cmd); err != nil {
				return fmt.Errorf("replay: decoding command at tick %d: %w", rec.Tick, err)
			}
			pending = append(pending, cmd)
		case journal.RecordSnapshot:
			for _, cmd := range pending {
				s.Enqueue(cmd)
			}
			pending = nil
			if _, err := s.Tick(); err != nil {
				return fmt.Errorf("replay: tick %d: %w", rec.Tick, err)
			}
			ticks++
		}
	}

	if err := s.Fatal(); err != nil {
		return err
	}
	fmt.Printf("replayed %d ticks from %s (run_id=%s, seed=%d)\n", ticks, *journalPath, hdr.RunID, hdr.Seed)
	for _, tv := range s.Leaderboard() {
		fmt.Printf("%-12s position=%-6d cash=%-10d pnl=%-10d var=%.2f toxicity=%.3f\n",
			tv.TraderID, tv.Position, tv.Cash, tv.PnL, tv.VaR, tv.Toxicity)
	}
	return nil
}
