package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/auth"
	"github.com/freeeve/baghchal/api/internal/client"
	"github.com/freeeve/baghchal/api/internal/handler"
	"github.com/freeeve/baghchal/api/internal/logger"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/internal/service"
)

const usage = `usage: aictl [flags] <command> [args]

commands:
  analyze <easy|medium|hard>     run a comparison
  qtable <tiger|goat>            show a policy summary
  train <tiger|goat>             start training and follow its progress
  status <tiger|goat>            show the latest training job
  cancel <tiger|goat>            stop a running training job
  policies                       list the saved policies
`

func main() {
	url := flag.String("url", "http://localhost:8010", "server base URL")
	token := flag.String("token", os.Getenv("AICTL_TOKEN"), "bearer token (default $AICTL_TOKEN)")
	secret := flag.String("secret", "", "mint an admin token with this JWT secret instead of -token")
	opponent := flag.String("opponent", "", "training opponent (default: server setting)")
	episodes := flag.Int("episodes", 0, "training episodes (default: server setting)")
	detach := flag.Bool("detach", false, "start training without following it")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	logger.InitCLI(*debug)

	cmd, arg := flag.Arg(0), flag.Arg(1)
	nargs := 2
	if cmd == "policies" {
		nargs = 1
	}
	if flag.NArg() != nargs {
		flag.Usage()
		os.Exit(2)
	}

	if *secret != "" {
		t, err := auth.NewJWTManager(*secret).GenerateAccessToken("aictl", auth.RoleAdmin)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to mint token")
		}
		*token = t
	}
	if *token == "" {
		log.Fatal().Msg("Set -token, $AICTL_TOKEN or -secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	c := client.New(*url, *token)
	var (
		out any
		err error
	)
	switch cmd {
	case "analyze":
		out, err = c.RunAnalysis(ctx, arg)
	case "qtable":
		out, err = c.GetQTable(ctx, arg)
	case "status":
		out, err = c.TrainingStatus(ctx, arg)
	case "cancel":
		out, err = c.CancelTraining(ctx, arg)
	case "policies":
		out, err = c.ListPolicies(ctx)
	case "train":
		req := model.TrainingRequest{Player: arg, Opponent: *opponent, Episodes: *episodes}
		if *detach {
			out, err = c.StartTraining(ctx, req)
		} else {
			out, err = follow(ctx, c, req)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("Request failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

// follow starts a training job and logs its progress events until it ends.
// Interrupting the command leaves the job running on the server.
func follow(ctx context.Context, c *client.Client, req model.TrainingRequest) (*model.TrainingStatus, error) {
	if err := c.ConnectWS(ctx); err != nil {
		return nil, err
	}
	defer c.CloseWS()
	if err := c.Subscribe(handler.TrainingChannel(req.Player)); err != nil {
		return nil, err
	}
	// Let the subscription land before events start flowing.
	time.Sleep(100 * time.Millisecond)

	st, err := c.StartTraining(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info().Str("player", st.Player).Str("opponent", st.Opponent).Int("episodes", st.Episodes).Msg("Training started")

	for {
		select {
		case <-ctx.Done():
			return c.TrainingStatus(context.Background(), req.Player)
		case ev, ok := <-c.Events():
			if !ok {
				return nil, fmt.Errorf("connection closed before training ended")
			}
			switch ev.Type {
			case service.EventTrainingProgress:
				var p struct {
					Episode  int     `json:"episode"`
					Episodes int     `json:"episodes"`
					States   int     `json:"states"`
					Epsilon  float64 `json:"epsilon"`
					Wins     int     `json:"wins"`
				}
				if err := json.Unmarshal(ev.Data, &p); err == nil {
					log.Info().
						Int("episode", p.Episode).
						Int("of", p.Episodes).
						Int("states", p.States).
						Float64("epsilon", p.Epsilon).
						Int("wins", p.Wins).
						Msg("Progress")
				}
			case service.EventTrainingCompleted, service.EventTrainingCancelled, service.EventTrainingFailed:
				var final model.TrainingStatus
				if err := json.Unmarshal(ev.Data, &final); err != nil {
					return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
				}
				return &final, nil
			}
		}
	}
}
