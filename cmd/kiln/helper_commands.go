package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/ipc"
)

func newHelperCommand(ctx *commandContext) *cobra.Command {
	helperCmd := &cobra.Command{
		Use:   "helper",
		Short: "Interact with the privileged helper daemon",
	}

	helperCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that the helper is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProxy(func(proxy *ipc.Proxy) error {
				version, err := proxy.Ping(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "helper is alive (protocol %s)\n", version)
				return nil
			})
		},
	})

	helperCmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Interrupt the tool the helper is currently running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProxy(func(proxy *ipc.Proxy) error {
				cancelled, err := proxy.Cancel(cmd.Context())
				if err != nil {
					return err
				}
				if cancelled {
					fmt.Fprintln(cmd.OutOrStdout(), "in-flight process signalled")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing is running")
				}
				return nil
			})
		},
	})

	helperCmd.AddCommand(&cobra.Command{
		Use:   "shutdown",
		Short: "Ask the helper process to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProxy(func(proxy *ipc.Proxy) error {
				if err := proxy.Shutdown(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "helper is shutting down")
				return nil
			})
		},
	})

	return helperCmd
}
