package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	// serve
	bind        string
	port        int
	prefix      string
	profile     bool
	roomTimeout time.Duration
	tlsCert     string
	tlsKey      string

	// play
	server     string
	room       string
	name       string
	rounds     int
	topic      string
	difficulty string
	followUps  int

	verbose bool
	version bool
}

func (c *Config) validateServe() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return nil
}

func (c *Config) validatePlay() error {
	if c.server == "" {
		return errors.New("--server is required")
	}
	if c.room == "" {
		return errors.New("--room is required")
	}
	if c.rounds < 1 {
		return fmt.Errorf("invalid round count: %d", c.rounds)
	}
	if c.followUps < 0 {
		return fmt.Errorf("invalid follow-up count: %d", c.followUps)
	}
	switch c.difficulty {
	case "easy", "medium", "hard":
	default:
		return fmt.Errorf("invalid difficulty (easy, medium or hard): %q", c.difficulty)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BUZZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "buzzbox",
		Short:         "A live trivia game replicated across peers in a real-time room, judged by an LLM.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay: a websocket room server that fans data frames out to every peer.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateServe(); err != nil {
				return err
			}
			return serveRelay(cmd.Context(), cfg)
		},
	}

	sfs := serve.Flags()
	sfs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BUZZBOX_BIND)")
	sfs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BUZZBOX_PORT)")
	sfs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BUZZBOX_PREFIX)")
	sfs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BUZZBOX_PROFILE)")
	sfs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are ended (env: BUZZBOX_ROOM_TIMEOUT)")
	sfs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BUZZBOX_TLS_CERT)")
	sfs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BUZZBOX_TLS_KEY)")

	play := &cobra.Command{
		Use:   "play",
		Short: "Join a room as a peer and play from the terminal.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validatePlay(); err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg)
		},
	}

	pfs := play.Flags()
	pfs.StringVarP(&cfg.server, "server", "s", "http://localhost:8080", "relay server base URL (env: BUZZBOX_SERVER)")
	pfs.StringVarP(&cfg.room, "room", "r", "", "room ID to join (env: BUZZBOX_ROOM)")
	pfs.StringVarP(&cfg.name, "name", "n", "", "display name; a random suffix keeps identities unique (env: BUZZBOX_NAME)")
	pfs.IntVar(&cfg.rounds, "rounds", 5, "rounds per game when hosting (env: BUZZBOX_ROUNDS)")
	pfs.StringVar(&cfg.topic, "topic", "", "topic ID to pin questions to; empty picks at random (env: BUZZBOX_TOPIC)")
	pfs.StringVar(&cfg.difficulty, "difficulty", "medium", "question difficulty: easy, medium or hard (env: BUZZBOX_DIFFICULTY)")
	pfs.IntVar(&cfg.followUps, "follow-ups", 0, "judge follow-up questions per round (env: BUZZBOX_FOLLOW_UPS)")

	root.PersistentFlags().BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BUZZBOX_VERBOSE)")
	root.PersistentFlags().BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BUZZBOX_VERSION)")

	for _, cmd := range []*cobra.Command{root, serve, play} {
		fs := cmd.Flags()

		fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
			return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
		})

		fs.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
			}
		})
	}

	root.AddCommand(serve, play)

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.SetVersionTemplate("buzzbox v{{.Version}}\n")

	return root
}
