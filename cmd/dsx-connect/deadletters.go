package main

import (
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/routes"
)

func resolveApiUrl(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if fromEnv := os.Getenv("DSX_CONNECT_API_URL"); fromEnv != "" {
		return fromEnv, nil
	}

	return "", errors.New("api url not specified; use --api-url or DSX_CONNECT_API_URL")
}

func cmdDeadLetters() *cobra.Command {
	var apiUrl string
	var limit int

	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "List dead-lettered scan jobs",
		// Talks to a running API; no config file needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveApiUrl(apiUrl)
			if err != nil {
				return err
			}

			var response routes.ListDeadLettersResponseJson
			var apiErr api_common.ErrorResponse

			resp, err := resty.New().R().
				SetResult(&response).
				SetError(&apiErr).
				SetQueryParam("limit", fmt.Sprintf("%d", limit)).
				Get(fmt.Sprintf("%s/api/v1/scan/deadletters", url))
			if err != nil {
				return err
			}
			if resp.IsError() {
				return errors.Errorf("api returned %s: %s", resp.Status(), apiErr.Error)
			}

			if len(response.Items) == 0 {
				fmt.Println("no dead letters")
				return nil
			}

			for _, dl := range response.Items {
				fmt.Printf("%s  job=%s  connector=%s  stage=%s  class=%s\n",
					dl.Id, dl.JobId, dl.ConnectorId, dl.Stage, dl.Class)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&apiUrl, "api-url", "", "base url of the dsx-connect API")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum dead letters to list")

	return cmd
}

func cmdRequeue() *cobra.Command {
	var apiUrl string

	cmd := &cobra.Command{
		Use:   "requeue <dead-letter-id>",
		Short: "Requeue a dead-lettered scan job",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveApiUrl(apiUrl)
			if err != nil {
				return err
			}

			var apiErr api_common.ErrorResponse

			resp, err := resty.New().R().
				SetError(&apiErr).
				Post(fmt.Sprintf("%s/api/v1/scan/deadletters/%s/requeue", url, args[0]))
			if err != nil {
				return err
			}
			if resp.IsError() {
				return errors.Errorf("api returned %s: %s", resp.Status(), apiErr.Error)
			}

			fmt.Printf("dead letter %s requeued\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&apiUrl, "api-url", "", "base url of the dsx-connect API")

	return cmd
}
