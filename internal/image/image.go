// Package image acquires the proxy and updater images, restricted to trusted
// registries and resilient to registry rate limiting.
package image

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MaxPullAttempts bounds the attempts made for a rate limited pull.
const MaxPullAttempts = 5

// ErrUntrustedImage is returned for references outside the trusted registries.
var ErrUntrustedImage = errors.New("only images distributed via docker.pkg.github.com or ghcr.io can be fetched")

var azureRegistry = regexp.MustCompile(`^[\w.-]*\.azure-api\.net$`)

// MetricReporter receives one call per pull attempt.
type MetricReporter func(ctx context.Context, name, metricType string, value float64, tags map[string]string)

// Options configures a Service.
type Options struct {
	Logger *logrus.Entry

	// Metrics is optional.
	Metrics MetricReporter

	// AllowUntrusted disables the registry allow-list.
	AllowUntrusted bool

	// FallbackRegistry is used by PullWithFallback.
	FallbackRegistry string

	// BackOff overrides the rate limit backoff policy.
	BackOff func() backoff.BackOff

	// Timer overrides how backoff delays are waited out. Tests use an
	// instant timer.
	Timer backoff.Timer
}

// Service pulls images through the container runtime.
type Service struct {
	images           container.Images
	log              *logrus.Entry
	metrics          MetricReporter
	allowUntrusted   bool
	fallbackRegistry string
	newBackOff       func() backoff.BackOff
	timer            backoff.Timer
}

// NewService creates a Service.
func NewService(images container.Images, opts Options) *Service {
	s := &Service{
		images:           images,
		log:              opts.Logger,
		metrics:          opts.Metrics,
		allowUntrusted:   opts.AllowUntrusted,
		fallbackRegistry: opts.FallbackRegistry,
		newBackOff:       opts.BackOff,
		timer:            opts.Timer,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.newBackOff == nil {
		s.newBackOff = DefaultBackOff
	}
	return s
}

// DefaultBackOff waits around 4s, 8s, 16s, 32s between the five attempts,
// each delay randomized by ±50%.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second * 2
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = 2 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxPullAttempts-1)
}

// Trusted reports whether ref is hosted on a trusted registry.
func Trusted(ref string) bool {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return false
	}
	registry := parsed.Context().RegistryStr()
	return registry == "ghcr.io" || registry == "docker.pkg.github.com" || azureRegistry.MatchString(registry)
}

// Organization returns the owning organization of ref's repository, skipping
// a nested registry host as used by mirror registries.
func Organization(ref string) string {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return ""
	}
	segments := strings.Split(parsed.Context().RepositoryStr(), "/")
	if len(segments) > 1 && strings.Contains(segments[0], ".") {
		segments = segments[1:]
	}
	return segments[0]
}

// Pull makes ref available locally. Unless force is set, an image that is
// already present is not pulled again.
func (s *Service) Pull(ctx context.Context, ref string, force bool) error {
	if !s.allowUntrusted && !Trusted(ref) {
		return fmt.Errorf("%s: %w", ref, ErrUntrustedImage)
	}

	if !force {
		err := s.images.InspectImage(ctx, ref)
		if err == nil {
			s.log.WithField("image", ref).Info("Resolved image to existing local copy")
			return nil
		}
		if !container.IsNotFound(err) {
			return fmt.Errorf("inspect image %s: %w", ref, err)
		}
	}

	return s.pullWithRetry(ctx, ref)
}

func (s *Service) pullWithRetry(ctx context.Context, ref string) error {
	log := s.log.WithField("image", ref)
	org := Organization(ref)
	attempt := 0

	operation := func() error {
		attempt++
		if s.metrics != nil {
			s.metrics(ctx, "image_pull", "increment", 1, map[string]string{"organization": org})
		}
		log.Infof("Pulling image (attempt %d)...", attempt)

		err := s.images.PullImage(ctx, ref)
		if err == nil {
			log.Info("Pulled image")
			return nil
		}
		if !rateLimited(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.Warnf("Received Too Many Requests error. Retrying in %s...", delay.Round(time.Second))
	}

	policy := backoff.WithContext(s.newBackOff(), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, s.timer); err != nil {
		if rateLimited(err) {
			log.Errorf("Failed to pull image after %d attempts", attempt)
		}
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}

func rateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "toomanyrequests")
}

// PullAll pulls refs concurrently and returns the first error.
func (s *Service) PullAll(ctx context.Context, refs ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			return s.Pull(ctx, ref, false)
		})
	}
	return g.Wait()
}

// PullWithFallback pulls refs from their own registries and, if that fails,
// from the fallback registry. It returns the references that were pulled.
// An untrusted reference fails before anything is pulled and never falls
// back.
func (s *Service) PullWithFallback(ctx context.Context, refs ...string) ([]string, error) {
	if !s.allowUntrusted {
		for _, ref := range refs {
			if !Trusted(ref) {
				return nil, fmt.Errorf("%s: %w", ref, ErrUntrustedImage)
			}
		}
	}

	err := s.PullAll(ctx, refs...)
	if err == nil {
		return refs, nil
	}
	if s.fallbackRegistry == "" || errors.Is(err, context.Canceled) || errors.Is(err, ErrUntrustedImage) {
		return nil, err
	}
	s.log.WithError(err).Warn("Primary image pull failed, attempting fallback")

	fallback := make([]string, len(refs))
	for i, ref := range refs {
		fallback[i] = s.fallbackRegistry + "/" + ref
	}
	if err := s.PullAll(ctx, fallback...); err != nil {
		return nil, err
	}
	return fallback, nil
}

// UpdaterSHA returns the text after the last colon of ref, which for pinned
// updater images is the commit the image was built from. It reports false
// when ref has no colon.
func UpdaterSHA(ref string) (string, bool) {
	i := strings.LastIndex(ref, ":")
	if i < 0 {
		return "", false
	}
	return ref[i+1:], true
}
