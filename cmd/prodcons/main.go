// Program prodcons runs a producer and a consumer that hand a fixed sequence
// of items to each other through a single-slot channel, printing a line for
// each item produced and consumed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creachadair/slot/prodcons"
	"github.com/jessevdk/go-flags"

	log "github.com/sirupsen/logrus"
)

type options struct {
	Count    int           `long:"count" default:"10" description:"number of items to exchange"`
	Repeat   int           `long:"repeat" default:"1" description:"number of times to run the exchange"`
	Jitter   time.Duration `long:"jitter" default:"0s" description:"maximum random pause before each iteration"`
	Verify   bool          `long:"verify" description:"check the order of every run's events"`
	LogLevel string        `long:"log-level" default:"info" description:"log level"`
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	var ferr *flags.Error
	if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
		fmt.Println(ferr.Message)
		return
	} else if err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments: ", os.Args)
	}

	logger := log.StandardLogger()
	logger.SetOutput(os.Stderr)
	if err := setLogLevel(logger, opts.LogLevel); err != nil {
		log.WithError(err).Fatal("Failed to set log level. Valid log levels are: ", log.AllLevels)
	}

	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		log.WithError(err).Fatal("Exchange failed")
	}
}

func parseArgs(args []string) (options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return opts, err
	}
	switch {
	case len(rest) != 0:
		return opts, fmt.Errorf("unexpected arguments: %q", rest)
	case opts.Count < 0:
		return opts, fmt.Errorf("invalid --count %d", opts.Count)
	case opts.Repeat < 1:
		return opts, fmt.Errorf("invalid --repeat %d", opts.Repeat)
	case opts.Jitter < 0:
		return opts, fmt.Errorf("invalid --jitter %v", opts.Jitter)
	}
	return opts, nil
}

func setLogLevel(logger *log.Logger, logLevel string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

// run performs opts.Repeat exchanges, writing the event lines to out.
func run(ctx context.Context, opts options, out io.Writer, logger *log.Logger) error {
	console := prodcons.NewWriterSink(out)
	var rec prodcons.Recorder

	sink := prodcons.Sink(console)
	if opts.Verify {
		sink = prodcons.Tee(console, &rec)
	}

	for i := 1; i <= opts.Repeat; i++ {
		rec.Reset()
		if _, err := prodcons.Run(ctx, prodcons.Config{
			Count:  opts.Count,
			Sink:   sink,
			Jitter: opts.Jitter,
			Log:    logger.WithField("iteration", i),
		}); err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
		if err := console.Err(); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if opts.Verify {
			if err := prodcons.Check(rec.Events(), opts.Count); err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
		}
	}
	logger.WithFields(log.Fields{
		"runs":     opts.Repeat,
		"count":    opts.Count,
		"verified": opts.Verify,
	}).Debug("All exchanges complete")
	return nil
}
