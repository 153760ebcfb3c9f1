package cmd

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/sheetd/packages/config"
	"github.com/vogtb/sheetd/packages/engine"
	"github.com/vogtb/sheetd/packages/graph"
	"github.com/vogtb/sheetd/packages/server"
	"github.com/vogtb/sheetd/packages/store"
	"github.com/vogtb/sheetd/packages/transport"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(out.String(), "sheetd version "+Version), out.String())
}

func TestApplyServeFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, cfg config.Config)
		wantErr bool
	}{
		{
			name: "no flags keeps config",
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, config.Default(), cfg)
			},
		},
		{
			name: "overrides",
			args: []string{"--listen", ":7000", "--log-level", "debug", "--log-json", "--trace-stdout"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, ":7000", cfg.ListenAddr)
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.True(t, cfg.Log.JSON)
				assert.True(t, cfg.Tracing.Stdout)
			},
		},
		{
			name: "admin off",
			args: []string{"--admin", "off"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "", cfg.AdminAddr)
			},
		},
		{
			name:    "invalid level",
			args:    []string{"--log-level", "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// fresh flag set per case so Changed reflects only these args
			cmd := &cobra.Command{Use: "serve"}
			cmd.Flags().StringVar(&serveListenAddr, "listen", "", "")
			cmd.Flags().StringVar(&serveAdminAddr, "admin", "", "")
			cmd.Flags().StringVar(&serveLogLevel, "log-level", "", "")
			cmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "")
			cmd.Flags().BoolVar(&serveTraceStdout, "trace-stdout", false, "")
			require.NoError(t, cmd.Flags().Parse(tt.args))

			cfg := config.Default()
			err := applyServeFlags(cmd, &cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestRunServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.AdminAddr = "127.0.0.1:0"
	cfg.Log.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(ctx, cfg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not return")
	}
}

func TestRunServeListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.ListenAddr = ln.Addr().String()
	cfg.AdminAddr = ""
	cfg.Log.Level = "error"

	err = runServe(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunClient(t *testing.T) {
	eng := engine.New(store.New(), graph.New(), engine.Options{})
	ln, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eng.Run(ctx) }()
	go func() { _ = server.NewSupervisor(ln, eng, server.RateLimit{}, nil).Serve(ctx) }()

	conn, err := net.Dial("tcp", ln.Addr())
	require.NoError(t, err)
	defer conn.Close()

	var out bytes.Buffer
	in := strings.NewReader("set A1 5\n\nget A1\nbogus\n")
	require.NoError(t, runClient(conn, in, &out))
	assert.Equal(t, "A1 = 5\nError: invalid command\n", out.String())
}

func TestRunServeAdminListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.AdminAddr = ln.Addr().String()
	cfg.Log.Level = "error"

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(context.Background(), cfg)
	}()
	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "listen "+cfg.AdminAddr)
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not return")
	}
}
