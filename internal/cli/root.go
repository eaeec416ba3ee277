// Package cli holds the loadmon command tree.
package cli

import (
	"fmt"

	"github.com/aman-churiwal/loadmon/internal/config"
	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/spf13/cobra"
)

// Version will be set at build time
var Version = "dev"

type options struct {
	configFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "loadmon",
		Short:         "Fleet load telemetry collector",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml or json)")

	root.AddCommand(
		newServeCommand(opts),
		newAgentCommand(opts),
		newSealCommand(opts),
	)

	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newCipher(secret string) (*envelope.Cipher, error) {
	keys, err := envelope.NewSharedSecret(secret)
	if err != nil {
		return nil, err
	}
	return envelope.New(keys)
}
