package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/internal/config"
	"github.com/ehr/opdflow/internal/flowengine"
	"github.com/ehr/opdflow/internal/platform/flowclient"
)

// Shell is the command-line router. It records every path the engine
// pushes so the command can report where the flow moved.
type Shell struct {
	mu    sync.Mutex
	paths []string
}

func (s *Shell) Push(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
}

// Paths returns the pushed paths in order.
func (s *Shell) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Last returns the most recent pushed path, or "".
func (s *Shell) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.paths) == 0 {
		return ""
	}
	return s.paths[len(s.paths)-1]
}

// globalOptions are the persistent flags shared by every visit subcommand.
type globalOptions struct {
	configFile string
	apiURL     string
	token      string
	tenant     string
	facility   string
	offline    bool
	output     string
	verbose    bool
}

// session is one engine instance wired to the HTTP backend.
type session struct {
	cfg    *config.ClientConfig
	engine *flowengine.Engine
	shell  *Shell
	probe  *flowclient.Probe
	out    io.Writer
}

func (o *globalOptions) clientConfig() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.token != "" {
		cfg.Token = o.token
	}
	if o.tenant != "" {
		cfg.TenantID = o.tenant
	}
	if o.facility != "" {
		cfg.FacilityID = o.facility
	}
	return cfg, nil
}

func (o *globalOptions) open(ctx context.Context, out, errOut io.Writer) (*session, error) {
	if _, err := formatterFor(o.output); err != nil {
		return nil, err
	}
	cfg, err := o.clientConfig()
	if err != nil {
		return nil, err
	}
	client, err := flowclient.New(flowclient.Config{
		BaseURL:    cfg.APIURL,
		Token:      cfg.Token,
		TenantID:   cfg.TenantID,
		FacilityID: cfg.FacilityID,
		Timeout:    cfg.RequestTimeout(),
		Retries:    1,
	})
	if err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: errOut, NoColor: true}).Level(level).With().Timestamp().Logger()

	probe := flowclient.NewProbe(client, o.offline)
	if probe.Check(ctx) && !o.offline {
		logger.Warn().Str("api_url", cfg.APIURL).Msg("server unreachable, continuing offline")
	}

	shell := &Shell{}
	eng, err := flowengine.New(flowengine.Options{
		Backend:      client,
		Router:       shell,
		Connectivity: probe,
		Permissions:  client,
		ListRoot:     cfg.ListRoot,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create flow engine: %w", err)
	}
	return &session{cfg: cfg, engine: eng, shell: shell, probe: probe, out: out}, nil
}
