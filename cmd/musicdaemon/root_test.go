package main

import (
	"testing"

	"github.com/example/musicdaemon/internal/config"
	"github.com/spf13/cobra"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"serve", "model", "doctor", "generate"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_ModelHasDownloadAndVerify(t *testing.T) {
	root := NewRootCmd()

	var modelCmd *cobra.Command
	for _, sub := range root.Commands() {
		if sub.Name() == "model" {
			modelCmd = sub
			break
		}
	}

	if modelCmd == nil {
		t.Fatal("expected a model subcommand")
	}

	want := []string{"download", "verify"}
	for _, name := range want {
		found := false

		for _, sub := range modelCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected model subcommand %q not found", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}
}

func TestRequireConfig_FailsWhenNotInitialized(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.Config{}

	if _, err := requireConfig(); err == nil {
		t.Fatal("expected error when config is not loaded")
	}
}

func TestRequireConfig_SucceedsWhenLoaded(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.DefaultConfig()
	activeCfg.Cache.Dir = "cache"

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig returned unexpected error: %v", err)
	}

	if got.Cache.Dir != "cache" {
		t.Errorf("unexpected Cache.Dir: %q", got.Cache.Dir)
	}
}
