package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signlink/signlink/internal/config"
	"github.com/signlink/signlink/internal/domain"
	"github.com/signlink/signlink/internal/media"
	"github.com/signlink/signlink/internal/recognize"
	"github.com/signlink/signlink/internal/session"
	"github.com/signlink/signlink/internal/transcript"
)

func main() {
	room := flag.String("room", "", "room to join (required)")
	relayURL := flag.String("relay", "", "relay websocket url, overrides config")
	noCamera := flag.Bool("no-camera", false, "join without a local video source")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *room == "" {
		log.Fatal().Msg("-room is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if *relayURL == "" {
		*relayURL = cfg.RelayURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cam *media.Camera
	if !*noCamera {
		cam, err = media.OpenCamera(640, 480)
		if err != nil {
			log.Warn().Err(err).Msg("no camera, joining receive-only")
			cam = nil
		} else {
			defer cam.Close()
		}
	}

	latest := media.NewLatestFrame()
	tr := transcript.New()
	tr.OnAppend(func(e domain.Entry) {
		fmt.Printf("%s  [%s] %s\n", e.At.Format("15:04:05"), e.Sender, e.Text)
	})
	recog := recognize.NewClient(cfg.RecognizerURL, cfg.RecognizerTimeout)

	// The machine owns its transport through the factory; the pointer here
	// is only for pushing our own snapshots to the peer.
	var cur atomic.Pointer[session.RTCTransport]
	newTransport := func() (session.Transport, error) {
		t, err := session.NewRTCTransport(cfg.STUNURLs)
		if err != nil {
			return nil, err
		}
		t.OnFrame(latest.Set)
		cur.Store(t)
		return t, nil
	}

	rc, err := session.DialRelay(ctx, *relayURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", *relayURL).Msg("relay unreachable")
	}
	defer rc.Close()
	rc.OnRefused = func(code string) {
		log.Error().Str("code", code).Msg("join refused")
		cancel()
	}

	var loopMu sync.Mutex
	var stopLoop context.CancelFunc

	onPhase := func(p session.Phase) {
		loopMu.Lock()
		defer loopMu.Unlock()
		if p == session.PhaseActive {
			loopCtx, stop := context.WithCancel(ctx)
			stopLoop = stop
			l := &recognize.Loop{
				Recognizer:  recog,
				Transcript:  tr,
				Remote:      latest,
				RemoteEvery: cfg.RemoteSampleEvery,
				Logger:      log.Logger,
			}
			if cam != nil {
				l.Local = cam
				l.LocalEvery = cfg.LocalSampleEvery
			}
			go l.Run(loopCtx)
			if cam != nil {
				go media.PublishSnapshots(loopCtx, cam.Capture, cfg.RemoteSampleEvery, func(frame []byte) error {
					if t := cur.Load(); t != nil {
						return t.SendFrame(frame)
					}
					return nil
				})
			}
			return
		}
		if stopLoop != nil {
			stopLoop()
			stopLoop = nil
			latest.Clear()
		}
	}

	m := session.NewMachine(session.Options{
		Signaler:           rc,
		NewTransport:       newTransport,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Logger:             log.Logger,
		OnPhase:            onPhase,
	})

	if cam != nil {
		if err := m.StartMedia(); err != nil {
			log.Fatal().Err(err).Msg("starting media")
		}
	}
	if err := rc.Join(*room); err != nil {
		log.Fatal().Err(err).Msg("joining room")
	}
	log.Info().Str("room", *room).Msg("waiting for peer")

	if cam != nil {
		// "c" on stdin toggles the camera without touching negotiation.
		go func() {
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				if sc.Text() == "c" {
					cam.SetEnabled(!cam.Enabled())
				}
			}
		}()
	}

	go func() {
		<-ctx.Done()
		m.Terminate()
		rc.Close()
	}()

	rc.Run(ctx, m)
	log.Info().Msg("call ended")
}
