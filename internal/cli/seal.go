package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/spf13/cobra"
)

func newSealCommand(opts *options) *cobra.Command {
	var serverID, load int
	var timestamp string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Print a sealed update_load request body",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Envelope.Secret == "" {
				return errors.New("envelope.secret is required")
			}

			rec := envelope.NewRecord(serverID, load, time.Now())
			if timestamp != "" {
				rec.Timestamp = timestamp
				if _, err := rec.Time(); err != nil {
					return err
				}
			}

			cipher, err := newCipher(cfg.Envelope.Secret)
			if err != nil {
				return err
			}
			sealed, err := cipher.Seal(rec)
			if err != nil {
				return err
			}

			body, err := json.Marshal(map[string]string{"data": sealed})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return err
		},
	}

	cmd.Flags().IntVar(&serverID, "server-id", 0, "node id to report as")
	cmd.Flags().IntVar(&load, "load", 0, "load percentage")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "ISO 8601 timestamp (default: now)")
	_ = cmd.MarkFlagRequired("server-id")
	_ = cmd.MarkFlagRequired("load")

	return cmd
}
