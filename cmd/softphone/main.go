/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Command softphone runs the softphone headless. Without Twilio credentials
// it plays a scripted session against the loopback adapter. With
// TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN set it logs in to Twilio, serves
// the voice and status webhooks and waits for calls.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automat-berlin/afone"
	"github.com/automat-berlin/afone/adapter/loopback"
	"github.com/automat-berlin/afone/adapter/twiliotrunk"
	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/media"
	"github.com/automat-berlin/afone/notify"
	"github.com/automat-berlin/afone/phonesdk"
	"github.com/automat-berlin/afone/push"
	"github.com/rs/zerolog"
)

func main() {
	logger := phonesdk.NewLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var trunk *twiliotrunk.Adapter
	config := &afone.Config{
		Settings: calling.Settings{AudioCodecs: media.AudioCodecs()},
		Notifier: notify.NewLogNotifier(*logger),
		Logger:   logger,
	}
	sid, token := os.Getenv("TWILIO_ACCOUNT_SID"), os.Getenv("TWILIO_AUTH_TOKEN")
	if sid != "" && token != "" {
		config.NewAdapter = func(orch *calling.Orchestrator) calling.SignalingAdapter {
			trunk = twiliotrunk.New(orch, &twiliotrunk.Config{
				CallerID:          os.Getenv("TWILIO_CALLER_ID"),
				StatusCallbackURL: os.Getenv("TWILIO_STATUS_URL"),
				RingTimeout:       twiliotrunk.DefaultRingTimeout,
				Logger:            logger,
			})
			return trunk
		}
	} else {
		config.NewAdapter = func(orch *calling.Orchestrator) calling.SignalingAdapter {
			return loopback.New(orch, &loopback.Config{DisableMedia: true, Logger: logger})
		}
	}

	phone, err := afone.New(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("creating phone")
	}

	credentials := calling.Credentials{
		Login:     envOr("SOFTPHONE_LOGIN", "100"),
		Password:  envOr("SOFTPHONE_PASSWORD", "secret"),
		SIPServer: envOr("SOFTPHONE_SERVER", "sip.example.com"),
		Advanced:  calling.DefaultAdvanced(),
	}
	if trunk != nil {
		credentials.Login, credentials.Password = sid, token
	}

	logger.Info().Str("login", credentials.Login).Msg("[1/3] logging in")
	loginErr := make(chan error, 1)
	phone.Login(credentials, func(err error) { loginErr <- err })
	if err := <-loginErr; err != nil {
		logger.Fatal().Err(err).Msg("login")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if url := os.Getenv("SOFTPHONE_PUSH_URL"); url != "" {
		logger.Info().Str("url", url).Msg("[2/3] connecting push gateway")
		pushConfig := push.DefaultConfig()
		pushConfig.URL = url
		pushConfig.AuthToken = os.Getenv("SOFTPHONE_PUSH_TOKEN")
		pushConfig.Logger = logger
		listener := push.NewListener(phone.Registry(), pushConfig)
		if err := listener.Connect(ctx); err != nil {
			logger.Error().Err(err).Msg("push gateway unavailable")
		}
		defer listener.Disconnect()
	} else {
		logger.Info().Msg("[2/3] no push gateway configured")
	}

	if trunk != nil {
		serve(ctx, phone, trunk, logger)
	} else {
		script(phone, logger)
	}

	logger.Info().Msg("logging out")
	done := make(chan struct{})
	phone.Logout(func() { close(done) })
	<-done
}

// script plays one incoming and one outgoing call against the loopback peer.
func script(phone *afone.Phone, logger *zerolog.Logger) {
	peer := phone.Adapter().(*loopback.Adapter)
	logger.Info().Msg("[3/3] running loopback session")

	phone.HandlePush([]byte(`{"from":"+4930123456","displayName":"Alice"}`))
	if call := phone.ActiveCall(); call != nil {
		phone.Answer(logResult(logger, "answer"))
		logger.Info().Str("caller", call.GetCaller()).Str("state", call.GetState().String()).Msg("incoming call")
		phone.Hangup(logResult(logger, "hangup"))
	}

	phone.Dial("200", false, logResult(logger, "dial"))
	call := phone.ActiveCall()
	if call == nil {
		return
	}
	peer.Trying(call.GetSessionID())
	peer.Ringing(call.GetSessionID())
	peer.Connected(call.GetSessionID())
	logger.Info().Str("callee", call.GetCallee()).Str("state", call.GetState().String()).Msg("outgoing call")

	phone.SendDTMF("1234#", logResult(logger, "dtmf"))
	phone.ToggleHold(logResult(logger, "hold"))
	phone.ToggleHold(logResult(logger, "unhold"))
	phone.SetSpeaker(true)
	peer.Closed(call.GetSessionID())
	logger.Info().Str("state", call.GetState().String()).Bool("remote", call.IsHungUpRemotely()).Msg("call ended")
}

// serve exposes the Twilio webhooks until ctx is done.
func serve(ctx context.Context, phone *afone.Phone, trunk *twiliotrunk.Adapter, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/voice", trunk.VoiceHandler())
	mux.Handle("/status", trunk.StatusHandler())
	server := &http.Server{Addr: envOr("SOFTPHONE_ADDR", ":8080"), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("webhook server")
		}
	}()
	logger.Info().Str("addr", server.Addr).Msg("[3/3] serving Twilio webhooks")

	if to := os.Getenv("SOFTPHONE_DIAL"); to != "" {
		phone.Dial(to, false, logResult(logger, "dial"))
	}

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdown)
}

func logResult(logger *zerolog.Logger, what string) func(error) {
	return func(err error) {
		if err != nil {
			logger.Error().Err(err).Msg(what)
			return
		}
		logger.Info().Msg(what + " ok")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
