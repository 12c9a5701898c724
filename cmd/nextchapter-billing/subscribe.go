package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/usecase"
)

const maxCodeAttempts = 3

type subscribeFlags struct {
	plan     string
	method   string
	channel  string
	email    string
	phone    string
	country  string
	operator string
	name     string
}

func newSubscribeCommand(flags *rootFlags) *cobra.Command {
	sf := &subscribeFlags{}
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Buy a plan: authorize with a one-time code, pay and wait for activation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd.Context(), flags, sf, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sf.plan, "plan", "daily", "plan id (daily|weekly|monthly)")
	cmd.Flags().StringVar(&sf.method, "method", string(model.PaymentMethodMobileMoney), "payment method (mobile_money|card)")
	cmd.Flags().StringVar(&sf.channel, "channel", string(model.OTPChannelEmail), "where to send the code (email|phone)")
	cmd.Flags().StringVar(&sf.email, "email", "", "account email")
	cmd.Flags().StringVar(&sf.phone, "phone", "", "phone number (mobile money payor, or code delivery)")
	cmd.Flags().StringVar(&sf.country, "country-code", "", "phone country code for code delivery")
	cmd.Flags().StringVar(&sf.operator, "operator", "", "mobile money operator (airtel|tnm)")
	cmd.Flags().StringVar(&sf.name, "name", "", "payor name")
	return cmd
}

func runSubscribe(ctx context.Context, flags *rootFlags, sf *subscribeFlags, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()

	var plan model.SubscriptionPlan
	for _, p := range a.payments.Plans() {
		if p.ID == sf.plan {
			plan = p
		}
	}
	if plan.IsZero() {
		return fmt.Errorf("unknown plan %q", sf.plan)
	}

	unsubscribe := a.notifier.Subscribe(func(ch usecase.NotificationChange) {
		if ch.Visible {
			fmt.Fprintf(out, "[%s] %s: %s\n", ch.Notification.Kind, ch.Notification.Title, ch.Notification.Message)
		}
	})
	defer unsubscribe()

	authID := ""
	if *a.cfg.Payment.RequireOTP {
		authID, err = authorize(ctx, a, sf, plan.Tier, bufio.NewReader(in), out)
		if err != nil {
			return err
		}
	}

	done := make(chan model.PaymentSession, 1)
	stop := a.payments.Subscribe(func(s model.PaymentSession) {
		if s.Status.Terminal() {
			select {
			case done <- s:
			default:
			}
		}
	})
	defer stop()

	sess, err := a.payments.Initiate(ctx, usecase.InitiateRequest{
		PlanID: plan.ID,
		Method: model.PaymentMethod(sf.method),
		Payor: model.PayorDetails{
			PhoneNumber: sf.phone,
			Operator:    sf.operator,
			Email:       sf.email,
			Name:        sf.name,
		},
		AuthorizationID: authID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Payment of %d %s started (transaction %s).\n", sess.Amount, sess.Currency, sess.TransactionID)
	if sess.RedirectURL != "" {
		fmt.Fprintf(out, "Complete the payment at %s\n", sess.RedirectURL)
	} else {
		fmt.Fprintln(out, "Approve the prompt on your phone.")
	}

	select {
	case final := <-done:
		fmt.Fprintf(out, "Payment %s", final.Status)
		if final.Reason != "" {
			fmt.Fprintf(out, ": %s", final.Reason)
		}
		fmt.Fprintln(out)
		if final.Status == model.PaymentStatusFailed || final.Status == model.PaymentStatusCancelled {
			return errors.New("payment did not complete")
		}
		return nil
	case <-ctx.Done():
		if err := a.payments.Cancel(context.Background()); err != nil {
			a.log.Warn().Err(err).Msg("cancel on interrupt")
		}
		return ctx.Err()
	}
}

// authorize requests a payment code and prompts until it verifies. It returns
// the challenge ID that carries the authorization.
func authorize(ctx context.Context, a *app, sf *subscribeFlags, tier model.Tier, in *bufio.Reader, out io.Writer) (string, error) {
	channel := model.OTPChannel(sf.channel)
	identifier := sf.email
	if channel == model.OTPChannelPhone {
		identifier = sf.phone
	}
	if identifier == "" {
		return "", fmt.Errorf("--%s is required to receive the code: %w", channel, domain.ErrInvalidArgument)
	}

	ch, err := a.otp.Request(ctx, usecase.OTPRequest{
		Identifier:  identifier,
		CountryCode: sf.country,
		Purpose:     model.OTPPurposePaymentAuthorization,
		Channel:     channel,
		Tier:        tier,
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(out, "A code was sent by %s. It expires in %s.\n", channel, ch.ExpiresAt.Sub(a.clock.Now()).Round(time.Second))

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		fmt.Fprint(out, "Code: ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			_ = a.otp.Cancel(ch.ID)
			return "", fmt.Errorf("read code: %w", err)
		}
		_, err = a.otp.Verify(ctx, ch.ID, strings.TrimSpace(line))
		switch {
		case err == nil:
			return ch.ID, nil
		case errors.Is(err, domain.ErrInvalidCode):
			fmt.Fprintln(out, "That code is not valid.")
		default:
			return "", err
		}
	}
	_ = a.otp.Cancel(ch.ID)
	return "", domain.ErrInvalidCode
}
