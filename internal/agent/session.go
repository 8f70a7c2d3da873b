package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"playbulb-controller/internal/ble"
	"playbulb-controller/internal/config"
	"playbulb-controller/internal/core"
	"playbulb-controller/internal/device"
)

// ErrNotConnected is returned for device commands while no session is up.
var ErrNotConnected = errors.New("bulb not connected")

// session is one connected bulb: a ready link and the cache over its registry.
type session struct {
	link  *ble.Link
	cache *device.Cache
}

// requiredAttributes must be present for a device to be treated as a bulb.
var requiredAttributes = []string{ble.CharColor, ble.CharEffect}

// abandon drops a link that never became a usable session.
func abandon(link *ble.Link) {
	if err := link.Disconnect(); err != nil {
		log.Printf("[Agent] Disconnect after failed setup: %v", err)
	}
}

// openSession finds the bulb, brings the link to ready and builds the cache.
func openSession(ctx context.Context, transport ble.Transport, cfg *config.Config, opts ...ble.LinkOption) (*session, error) {
	findCtx, cancel := context.WithTimeout(ctx, config.Duration(cfg.BLE.ScanTimeout))
	defer cancel()
	dev, err := transport.Find(findCtx, cfg.BLE.Address)
	if err != nil {
		return nil, err
	}

	opts = append([]ble.LinkOption{
		ble.WithPollInterval(config.Duration(cfg.BLE.PollInterval)),
		ble.WithPollAttempts(cfg.BLE.PollAttempts),
	}, opts...)
	link := ble.NewLink(dev, opts...)
	if err := link.Connect(ctx); err != nil {
		if dev.IsConnected() {
			abandon(link)
		}
		return nil, err
	}

	registry, err := ble.NewRegistry(link)
	if err != nil {
		abandon(link)
		return nil, err
	}
	for _, id := range requiredAttributes {
		if _, err := registry.Require(id); err != nil {
			abandon(link)
			return nil, err
		}
	}
	log.Printf("[Agent] %s ready, %d attributes: %s", dev.Address(), registry.Len(), strings.Join(registry.UUIDs(), " "))
	return &session{link: link, cache: device.New(dev.Address(), registry)}, nil
}

// ReadOnce connects, reads every field and disconnects.
func ReadOnce(ctx context.Context, cfg *config.Config, transport ble.Transport) (device.Snapshot, error) {
	sess, err := openSession(ctx, transport, cfg)
	if err != nil {
		return device.Snapshot{}, err
	}
	defer sess.link.Disconnect()
	return sess.cache.ReadAll()
}

func (a *Agent) onLinkState(s ble.LinkState) {
	link := a.status.SetLink(s.String(), s == ble.LinkReady)
	a.eventBus.Publish(core.Event{Type: core.LinkChangedEvent, Payload: link})
}

// connectLoop opens sessions and hands them to the orchestrator. After a
// session is lost it waits retryDelay and starts over.
func (a *Agent) connectLoop() {
	defer a.wg.Done()
	for {
		sess, err := openSession(a.ctx, a.transport, a.config, ble.WithStateHook(a.onLinkState))
		if err != nil {
			if a.ctx.Err() != nil {
				return
			}
			log.Printf("[Agent] Connection attempt failed: %v. Retrying in %s...", err, a.retryDelay)
			if !sleep(a.ctx, a.retryDelay) {
				return
			}
			continue
		}

		select {
		case a.sessions <- sess:
		case <-a.ctx.Done():
			sess.link.Disconnect()
			return
		}

		select {
		case <-a.lost:
		case <-a.ctx.Done():
			return
		}
		if !sleep(a.ctx, a.retryDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// attach installs sess and publishes a full read.
func (a *Agent) attach(sess *session) {
	a.sess = sess
	if err := a.refresh(); err != nil {
		log.Printf("[Agent] Initial read incomplete: %v", err)
	}
}

// detach disconnects the current session, if any, and wakes the connect loop.
func (a *Agent) detach() {
	if a.sess == nil {
		return
	}
	if err := a.sess.link.Disconnect(); err != nil {
		log.Printf("[Agent] Disconnect: %v", err)
	}
	a.sess = nil
	select {
	case a.lost <- struct{}{}:
	default:
	}
}

// checkLink drops the session when the device reports it is gone.
func (a *Agent) checkLink() {
	if a.sess == nil || a.sess.link.Device().IsConnected() {
		return
	}
	log.Printf("[Agent] %s is no longer connected.", a.sess.cache.Address())
	a.detach()
}

func (a *Agent) cache() (*device.Cache, error) {
	if a.sess == nil {
		return nil, ErrNotConnected
	}
	return a.sess.cache, nil
}

// refresh drops the cache, reads every field again and publishes the result
// even when some fields failed.
func (a *Agent) refresh() error {
	c, err := a.cache()
	if err != nil {
		return err
	}
	c.Invalidate()
	snap, err := c.ReadAll()
	a.publishDevice(snap)
	return err
}

func (a *Agent) publishDevice(snap device.Snapshot) {
	a.status.SetDevice(snap)
	a.eventBus.Publish(core.Event{Type: core.DeviceStateEvent, Payload: snap})
}

// write paces a device write and publishes the cache afterwards.
func (a *Agent) write(what string, fn func(c *device.Cache) error) error {
	c, err := a.cache()
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(a.ctx); err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return fmt.Errorf("set %s: %w", what, err)
	}
	a.publishDevice(c.Snapshot())
	return nil
}
