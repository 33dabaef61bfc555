package cli

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/jacentio/compute/stream"
)

func (a *app) newCascadeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cascade",
		Short: "Run the cascade delete stream handler as an AWS Lambda function",
		Long: `Start the AWS Lambda runtime with a DynamoDB Streams handler. When a
record is soft-deleted, every record referencing it through a model
attribute is destroyed as well. Run with --soft-delete so the cascade
keeps propagating.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := a.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ad, identity, err := a.open(cmd.Context(), logger)
			if err != nil {
				return err
			}

			handler := stream.NewHandler(ad, identity, logger)
			lambda.Start(handler.HandleCascadeDelete)
			return nil
		},
	}
}
