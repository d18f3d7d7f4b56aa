package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/appium"
	"github.com/vburojevic/rnsmoke/internal/automation"
	"github.com/vburojevic/rnsmoke/internal/config"
	"github.com/vburojevic/rnsmoke/internal/poll"
)

// AppiumCmd groups Appium server and UI commands
type AppiumCmd struct {
	URL string `default:"${config_appium_url}" help:"Appium server URL (env RNSMOKE_APPIUM_URL)"`

	Serve  AppiumServeCmd  `cmd:"" help:"Run an Appium server until interrupted"`
	Status AppiumStatusCmd `cmd:"" help:"Check whether the Appium server is ready"`
	Click  AppiumClickCmd  `cmd:"" help:"Click an element, dismissing dialogs with Escape between attempts"`
}

func (c *AppiumCmd) client(globals *Globals) *appium.Client {
	return appium.NewClient(c.URL, appium.WithClientLogger(globals.logger()))
}

// AppiumServeCmd runs an Appium server in the foreground
type AppiumServeCmd struct {
	Path    string        `default:"${config_appium_path}" help:"appium binary"`
	Timeout time.Duration `short:"t" default:"60s" help:"How long to wait for the server to become ready"`
	Args    []string      `arg:"" optional:"" passthrough:"" help:"Extra appium arguments"`
}

// Run executes the appium serve command
func (c *AppiumServeCmd) Run(parent *AppiumCmd, globals *Globals) error {
	ctx := globals.context()
	u, err := url.Parse(parent.URL)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", fmt.Errorf("invalid appium url %q: %w", parent.URL, err))
	}
	port := appium.DefaultPort
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return outputErrorCommon(globals, "INVALID_ARGS", fmt.Errorf("invalid appium port %q: %w", p, err))
		}
	}

	srv, err := appium.StartServer(ctx, appium.ServerOptions{
		Path:         c.Path,
		Host:         u.Hostname(),
		Port:         port,
		ExtraArgs:    c.Args,
		StartTimeout: c.Timeout,
		Poller:       poll.New(poll.WithLogger(globals.logger())),
		Logger:       globals.logger(),
	})
	if err != nil {
		return outputErrorCommon(globals, "APPIUM_START_FAILED", err)
	}
	emitInfo(globals, "appium ready at "+srv.URL, "")

	<-ctx.Done()
	if err := srv.Stop(); err != nil {
		globals.logger().Warn("appium exited with error", zap.Error(err))
	}
	emitInfo(globals, "appium stopped", "")
	return nil
}

// AppiumStatusCmd reports server readiness
type AppiumStatusCmd struct {
	Wait    bool          `short:"w" help:"Wait until ready"`
	Timeout time.Duration `short:"t" default:"60s" help:"How long --wait waits"`
}

// Run executes the appium status command
func (c *AppiumStatusCmd) Run(parent *AppiumCmd, globals *Globals) error {
	ctx := globals.context()
	client := parent.client(globals)
	start := time.Now()

	if !c.Wait {
		ready, err := client.Status(ctx)
		if err != nil {
			return outputErrorCommon(globals, "APPIUM_UNREACHABLE", err)
		}
		return emitWait(globals, "appium "+parent.URL+" ready", ready, "", time.Since(start))
	}

	// Connection errors are expected while the server starts.
	ok, err := poll.New(poll.WithLogger(globals.logger())).Until(ctx, func(ctx context.Context) (bool, error) {
		ready, err := client.Status(ctx)
		return err == nil && ready, nil
	}, c.Timeout, globals.interval(), poll.WithName("appium status"))
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	return emitWait(globals, "appium "+parent.URL+" ready", ok, "", time.Since(start))
}

// AppiumClickCmd clicks an element in a fresh session
type AppiumClickCmd struct {
	Selector     string   `arg:"" help:"XPath selector"`
	Capabilities []string `name:"cap" short:"c" help:"Session capability key=value; JSON values keep their type"`
	Attempts     int      `help:"Attempts before giving up (default: retry.attempts)"`
}

func (c *AppiumClickCmd) policy(cfg *config.Config, interval time.Duration) poll.RetryPolicy {
	policy := poll.DefaultRetryPolicy
	if cfg.Retry.Attempts > 0 {
		policy.Attempts = cfg.Retry.Attempts
	}
	if c.Attempts > 0 {
		policy.Attempts = c.Attempts
	}
	policy.PollTimeout = config.Duration(cfg.Retry.PollTimeout, policy.PollTimeout)
	policy.PollInterval = interval
	return policy
}

// Run executes the appium click command
func (c *AppiumClickCmd) Run(parent *AppiumCmd, globals *Globals) error {
	ctx := globals.context()
	caps, err := parseFields(c.Capabilities)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}

	client := parent.client(globals)
	if err := client.NewSession(ctx, caps); err != nil {
		return outputErrorCommon(globals, "SESSION_FAILED", err)
	}
	defer func() {
		if err := client.DeleteSession(context.WithoutCancel(ctx)); err != nil {
			globals.logger().Warn("failed to delete webdriver session", zap.Error(err))
		}
	}()

	ui := automation.New(client,
		automation.WithInterval(globals.interval()),
		automation.WithLogger(globals.logger()))
	if err := ui.ClickWhenExists(ctx, c.Selector, c.policy(globals.Config, globals.interval())); err != nil {
		return outputErrorCommon(globals, "CLICK_FAILED", err)
	}
	emitInfo(globals, "clicked "+c.Selector, client.SessionID())
	return nil
}
