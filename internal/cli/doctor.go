package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"callstack/internal/activity"
	"callstack/internal/output"
)

const reachTimeout = 3 * time.Second

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			cfg := deps.Services.Config
			ctx := cmd.Context()
			ok := true

			if path, err := exec.LookPath(cfg.Audio.Command); err != nil {
				f.SetupCheck("ffmpeg", false, fmt.Sprintf("%q not found. Install ffmpeg or set audio.command", cfg.Audio.Command))
				ok = false
			} else {
				f.SetupCheck("ffmpeg", true, path)
			}
			f.SetupCheck("Microphone", true, fmt.Sprintf("%s:%s, %s @ %d Hz", cfg.Audio.InputFormat, cfg.Audio.InputDevice, cfg.Audio.Container, cfg.Audio.SampleRate))

			if err := reachable(ctx, cfg.Backend.Origin); err != nil {
				f.SetupCheck("Backend", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Backend", true, cfg.Backend.Origin)
			}
			if cfg.Auth.Origin != cfg.Backend.Origin {
				if err := reachable(ctx, cfg.Auth.Origin); err != nil {
					f.SetupCheck("Identity service", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("Identity service", true, cfg.Auth.Origin)
				}
			}

			session, err := deps.Services.Identity.CurrentSession(ctx)
			switch {
			case err != nil:
				f.SetupCheck("Session", false, err.Error())
				ok = false
			case session == nil:
				f.SetupCheck("Session", false, "not signed in. Run: callstack login")
				ok = false
			case !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt):
				f.SetupCheck("Session", true, sessionLabel(session)+" (token expired, refreshed on next upload)")
			default:
				f.SetupCheck("Session", true, sessionLabel(session))
			}

			if cfg.Preview.Enabled {
				f.SetupCheck("Live preview", true, "Deepgram "+cfg.Preview.Model)
			} else {
				f.SetupCheck("Live preview", true, "off")
			}

			if cfg.Activity.RetentionMode == activity.RetentionPersistent {
				f.SetupCheck("Activity log", true, cfg.Activity.Path)
			} else {
				f.SetupCheck("Activity log", true, cfg.Activity.RetentionMode)
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

// reachable treats any HTTP answer as reachable.
func reachable(ctx context.Context, origin string) error {
	ctx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable", origin)
	}
	resp.Body.Close()
	return nil
}
