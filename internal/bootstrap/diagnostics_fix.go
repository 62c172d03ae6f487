package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"subtitle-assistant/internal/domain"
	"subtitle-assistant/internal/procexec"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// installer runs package manager commands until one option succeeds.
type installer struct {
	goos     string
	runner   procexec.Runner
	lookPath func(string) (string, error)
}

func newInstaller(goos string) *installer {
	return &installer{goos: goos, runner: procexec.ExecRunner{}, lookPath: exec.LookPath}
}

// FixDiagnostic applies a remediation for one failed diagnostic item and returns the refreshed report.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings := a.reloadSettings()
	inst := a.installer
	if inst == nil {
		inst = newInstaller(currentGOOS())
	}

	var fixErr error
	switch id {
	case "tool_ffmpeg":
		fixErr = inst.install("ffmpeg", ffmpegInstallOptions(inst.goos))
	case "tool_recognizer":
		fixErr = inst.install("recognizer", recognizerInstallOptions(inst.goos, settings.Backend))
	case "model":
		if settings.Backend == domain.BackendWhisperCpp {
			fixErr = fmt.Errorf("whisper.cpp models must be downloaded manually; set model_path to the ggml file")
			break
		}
		_, fixErr = a.DownloadModel(settings.ModelSize)
	case "output_dir":
		var changed bool
		settings, changed, fixErr = installOrFixOutputDir(settings)
		if changed {
			fixErr = errors.Join(fixErr, a.clearStoredOutputDir())
		}
	default:
		fixErr = fmt.Errorf("no automatic fix for diagnostic item: %s", id)
	}

	if fixErr != nil {
		a.log().Warn("diagnostic fix failed", slog.String("item", id), slog.Any("error", fixErr))
	}
	report := a.refreshDiagnosticsFromSettings(a.reloadSettings())
	return report, fixErr
}

// ffmpegInstallOptions lists package manager commands per OS.
func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// recognizerInstallOptions lists install commands for the configured backend.
func recognizerInstallOptions(goos, backend string) []installOption {
	if backend == domain.BackendWhisperCpp {
		if goos == "windows" {
			return []installOption{
				{manager: "winget", commands: [][]string{{"winget", "install", "--id", "ggerganov.whisper.cpp", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			}
		}
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "whisper-cpp"}}},
		}
	}

	python := "python3"
	if goos == "windows" {
		python = "python"
	}
	return []installOption{
		{manager: "pipx", commands: [][]string{{"pipx", "install", "whisper-ctranslate2"}}},
		{manager: python, commands: [][]string{{python, "-m", "pip", "install", "--user", "whisper-ctranslate2"}}},
	}
}

// install tries each available option in order.
func (i *installer) install(name string, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("install %s: no install commands configured for OS %s", name, i.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !i.commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := i.runInstallCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("install %s: no supported package manager found for %s", name, i.goos)
	}
	return fmt.Errorf("install %s: %s", name, strings.Join(errorsByManager, " | "))
}

func (i *installer) runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := i.runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func (i *installer) runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := i.runCommand(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func (i *installer) runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	log, err := i.runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", log.String(), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(log.Stderr + log.Stdout)
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", log.String(), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", log.String(), err, trimmed)
}

func (i *installer) commandAvailable(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

// installOrFixOutputDir creates the configured output directory. When that
// fails the setting is cleared so subtitles go next to each video.
func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	if outputDir == "" {
		return settings, false, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		settings.OutputDir = ""
		return settings, true, nil
	}
	return settings, false, nil
}

// clearStoredOutputDir persists an empty output directory.
func (a *App) clearStoredOutputDir() error {
	a.mu.Lock()
	a.stored.OutputDir = ""
	stored := a.stored
	a.mu.Unlock()

	if err := a.Store.Save(stored); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
