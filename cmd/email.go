package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/config"
	"github.com/oscarsierraproject/covid19pl/internal/model"
	"github.com/oscarsierraproject/covid19pl/internal/notify"
	"github.com/oscarsierraproject/covid19pl/internal/report"
)

var emailTo []string

// mailTransport replaces the SMTP client when set.
var mailTransport notify.Transport

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Send the daily digest by email",
	Long:  "Sends the one day change summary as plain text. Recipients come from --to or email.recipients.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("email"); err != nil {
			return err
		}
		ws, err := loadWorkspace(cfg)
		if err != nil {
			return err
		}

		to := emailTo
		if len(to) == 0 {
			to = cfg.Email.Recipients
		}
		return sendDigest(cmd.Context(), cfg.Email, ws, to)
	},
}

func init() {
	emailCmd.Flags().StringSliceVar(&emailTo, "to", nil, "recipient addresses (default email.recipients)")
	rootCmd.AddCommand(emailCmd)
}

// sendDigest mails the latest changes of ws to recipients, or the raw
// figures of its only snapshot.
func sendDigest(ctx context.Context, c config.EmailConfig, ws *workspace, recipients []string) error {
	if len(recipients) == 0 {
		return eris.New("email: no recipients, pass --to or set email.recipients")
	}

	body, err := digestBody(ws)
	if err != nil {
		return err
	}

	m, err := notify.NewMailer(c,
		notify.WithTransport(mailTransport),
		notify.WithLogger(zap.L().With(zap.String("component", "notify"))),
	)
	if err != nil {
		return err
	}
	return m.Send(ctx, report.Subject, body, recipients)
}

func digestBody(ws *workspace) (string, error) {
	changes, err := ws.Rec.LatestChanges()
	switch {
	case err == nil:
		return report.DigestBody(changes), nil
	case errors.Is(err, model.ErrInsufficientHistory) && ws.Latest() != nil:
		zap.L().Warn("not enough history for a daily difference, mailing raw figures", zap.Error(err))
		return report.RawDigestBody(ws.Latest()), nil
	default:
		return "", eris.Wrap(err, "email: latest changes")
	}
}
