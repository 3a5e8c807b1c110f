package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmittmann/tint"
	log "log/slog"

	"mirror/internal/api"
	"mirror/internal/assistant"
	"mirror/internal/audio"
	"mirror/internal/audio/pulse"
	"mirror/internal/audio/vad"
	"mirror/internal/chat"
	"mirror/internal/config"
	"mirror/internal/dialogue"
	"mirror/internal/display"
	"mirror/internal/history"
	"mirror/internal/ipc"
	"mirror/internal/mood"
	"mirror/internal/notify"
	"mirror/internal/proxy"
	"mirror/internal/sensing"
	"mirror/internal/speech"
	"mirror/internal/tts"
	"mirror/internal/vision"
	"mirror/internal/voice"
	"mirror/internal/weather"
	"mirror/pkg/audioconv"
	_ "mirror/pkg/audioconv/opus"
	"mirror/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

const greeting = "You look %s today! Want to talk or need a suggestion?"

type flags struct {
	env       string
	config    string
	logLevel  string
	proxyAddr string
	httpAddr  string
	listenDir string
	noCamera  bool
	socket    string
}

func main() {
	var f flags
	cli.StringVarP(&f.env, "env", "e", ".env", "Env file path")
	cli.StringVarP(&f.config, "config", "c", "mirror.yaml", "Config file path")
	cli.StringVarP(&f.logLevel, "log", "l", "info", "Log level")
	cli.StringVarP(&f.proxyAddr, "proxy", "p", "", "Socks proxy address for outbound calls")
	cli.StringVar(&f.httpAddr, "http", "", "Serve the REST API on this address")
	cli.StringVar(&f.listenDir, "listen-dir", "", "Read utterances from audio files in this directory instead of the microphone")
	cli.BoolVar(&f.noCamera, "no-camera", false, "Run without camera: no sensing, no snapshots")
	cli.StringVar(&f.socket, "socket", ipc.SocketPath, "Control socket path")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[f.logLevel],
		TimeFormat: time.TimeOnly,
	})))

	log.Info("Booting up")

	if err := godotenv.Load(f.env); err != nil {
		log.Debug("No env file", "path", f.env, "err", err)
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		log.Error("Failed to load config", "path", f.config, "err", err)
		os.Exit(1)
	}
	if f.proxyAddr != "" {
		cfg.Services.ProxyAddr = f.proxyAddr
	}
	if f.httpAddr != "" {
		cfg.HTTPAddr = f.httpAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f); err != nil {
		log.Error("Mirror stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}

func run(ctx context.Context, cfg *config.Config, f flags) error {
	if cfg.Services.OpenAIKey == "" {
		log.Warn("OPENAI_API_KEY not set; replies fall back to a canned line")
	}

	httpClient, err := proxy.NewClient(cfg.Services.ProxyAddr, cfg.Services.RequestTimeout)
	if err != nil {
		return fmt.Errorf("socks proxy %s: %w", cfg.Services.ProxyAddr, err)
	}

	store, err := history.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Debug("Loaded history", "path", cfg.DatabasePath)

	moods := mood.NewRegister()

	gen := chat.New(chat.Config{
		BaseURL:    cfg.Services.OpenAIBaseURL,
		APIKey:     cfg.Services.OpenAIKey,
		Model:      cfg.Services.OpenAIModel,
		Timeout:    cfg.Services.RequestTimeout,
		MaxRetries: 1,
		HTTPClient: httpClient,
	})

	wx := weather.New(weather.Config{
		GeoURL:      cfg.Services.GeoURL,
		BaseURL:     cfg.Services.WeatherBaseURL,
		APIKey:      cfg.Services.WeatherKey,
		DefaultCity: cfg.Services.DefaultCity,
		Timeout:     cfg.Services.RequestTimeout,
		HTTPClient:  httpClient,
	})

	g, ctx := errgroup.WithContext(ctx)
	ctx, terminate := context.WithCancel(ctx)
	defer terminate()

	utterances := speech.NewQueue(16)

	var (
		presenter dialogue.Presenter     = display.NewOpener()
		subtitles voice.SubtitlePublisher
		emotions  sensing.Publisher
	)
	if cfg.DisplayURL != "" {
		bus := display.NewBus(display.BusConfig{
			URL: cfg.DisplayURL,
			OnMessage: func(m display.Message) {
				if m.Kind == display.KindSay && !utterances.Push(m.Content) {
					log.Warn("Utterance queue full, dropping", "text", m.Content)
				}
			},
		})
		presenter, subtitles, emotions = bus, bus, bus
		g.Go(func() error { return bus.Run(ctx) })
	}

	espeak := tts.NewEspeak(cfg.Speech.Voice, cfg.Speech.Rate)
	defer espeak.Close()

	ducker := pulse.NewDucker(pulse.Config{SelfNames: []string{"mirror", "espeak"}})
	spk := voice.New(espeak, moods, ducker, subtitles)

	var (
		snap sensing.Camera
		shot assistant.Snapshotter
	)
	if !f.noCamera {
		cam := vision.NewCamera(cfg.Devices.Camera)
		snap = cam
		shot = vision.NewSnapshotter(cam, cfg.OutfitsDir, time.Now)
	}

	core := assistant.New(store, wx, gen, shot, moods, assistant.Config{
		DedupWindow: cfg.History.DedupWindow,
		SummarySize: cfg.History.SummarySize,
	})

	var listener speech.Listener = utterances
	if capture, closeCapture, err := newListener(cfg, f); err != nil {
		log.Error("Speech capture unavailable, accepting typed utterances only", "err", err)
	} else {
		defer closeCapture()
		listener = speech.WithQueue(capture, utterances)
	}

	session := dialogue.New(listener, spk, core, presenter)

	var loop *sensing.Loop
	if snap != nil {
		loop = sensing.New(snap, vision.NewClassifier(vision.ClassifierConfig{
			BaseURL:    cfg.Services.OpenAIBaseURL,
			APIKey:     cfg.Services.OpenAIKey,
			Model:      cfg.Services.VisionModel,
			Timeout:    cfg.Services.RequestTimeout,
			HTTPClient: httpClient,
		}), moods, gen, spk, emotions, sensing.Config{
			Cooldown: cfg.Sensing.Cooldown,
			Interval: cfg.Sensing.Interval,
		})
	}

	ctl, err := ipc.Listen(f.socket, func(_ context.Context, req ipc.Request) ipc.Response {
		switch req.Cmd {
		case ipc.CmdSay:
			if req.Text == "" {
				return ipc.Response{Error: "empty text"}
			}
			if !utterances.Push(req.Text) {
				return ipc.Response{Error: "utterance queue full"}
			}
			return ipc.Response{OK: true}
		case ipc.CmdStatus:
			return ipc.Response{
				OK:       true,
				Emotion:  moods.Emotion(),
				Response: moods.Response(),
				Paused:   session.Paused(),
			}
		default:
			log.Warn("Unknown command", "cmd", req.Cmd)
			return ipc.Response{Error: "unknown command " + req.Cmd}
		}
	})
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	g.Go(func() error { return ctl.Serve(ctx) })

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(api.Config{}, core, store),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("REST API listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		context.AfterFunc(ctx, func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
	}

	log.Info("Boot up - successful")

	if loop != nil {
		label, err := loop.Detect(ctx)
		if err != nil {
			log.Warn("Initial emotion detection failed", "err", err)
			label = moods.Emotion()
		}
		spk.Say(ctx, fmt.Sprintf(greeting, label))

		g.Go(func() error {
			if err := loop.Run(ctx); err != nil {
				log.Error("Sensing stopped", "err", err)
			}
			return nil
		})
	} else {
		spk.Say(ctx, fmt.Sprintf(greeting, moods.Emotion()))
	}

	g.Go(func() error {
		defer terminate()
		err := session.Run(ctx)
		session.Wait()
		return err
	})

	return g.Wait()
}

// newListener picks the utterance source: a spool directory when
// --listen-dir is set, the microphone otherwise.
func newListener(cfg *config.Config, f flags) (speech.Listener, func(), error) {
	tr, err := stt.NewTranscriber(cfg.Devices.WhisperModel, stt.Options{Language: cfg.Speech.Language})
	if err != nil {
		return nil, nil, fmt.Errorf("init whisper: %w", err)
	}
	log.Debug("Loaded whisper", "model", cfg.Devices.WhisperModel)

	if f.listenDir != "" {
		dl, err := speech.NewDirListener(speech.SpoolConfig{
			Dir:    f.listenDir,
			Accept: audioconv.Supported,
			Wait:   cfg.Speech.StartTimeout,
		}, func(ctx context.Context, path string) ([]float32, error) {
			return audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
		}, tr)
		if err != nil {
			_ = tr.Close()
			return nil, nil, err
		}
		log.Info("Listening on spool directory", "dir", filepath.Clean(f.listenDir))
		return dl, func() { _ = tr.Close() }, nil
	}

	vcfg := vad.DefaultConfig()
	vcfg.StartTimeout = cfg.Speech.StartTimeout
	vcfg.PhraseLimit = cfg.Speech.PhraseLimit

	rec := audio.NewRecorder(vcfg)
	if err := rec.Init(); err != nil {
		_ = tr.Close()
		return nil, nil, fmt.Errorf("init audio: %w", err)
	}
	log.Debug("Loaded recorder")

	var cue speech.Cue
	if cfg.Devices.CueSound != "" {
		cue = notify.NewCue(cfg.Devices.CueSound)
	}
	return speech.NewMicListener(rec, tr, cue), func() {
		rec.Close()
		_ = tr.Close()
	}, nil
}
