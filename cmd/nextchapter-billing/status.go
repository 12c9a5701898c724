package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"nextchapter-billing/internal/domain/model"
)

type statusView struct {
	model.SubscriptionSnapshot
	DisplayName string           `json:"display_name"`
	Transition  model.Transition `json:"transition"`
}

func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch and print the current subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			snap, kind, err := a.reconciler.Fetch(ctx)
			if err != nil {
				return err
			}
			name := "Free"
			if snap.Grants(model.TierPremium) {
				name = snap.DisplayName(a.clock.Now())
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(statusView{SubscriptionSnapshot: snap, DisplayName: name, Transition: kind})
		},
	}
}
