package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"handheld-hal/internal/logger"
	"handheld-hal/internal/settings"
	"handheld-hal/internal/types"

	"github.com/redis/go-redis/v9"
)

const (
	// HalHash holds the published HAL state.
	HalHash = "hal"
	// AppsHash maps app ids to names; field "current" holds the running app id.
	AppsHash = "apps"

	nvsPrefix = "nvs:"
)

type Callbacks struct {
	VolumeCallback     func(uint8) error
	BrightnessCallback func(uint8) error
	PowerCallback      func(string) error // "off", "chooser"
	AppCallback        func(int) error    // app id to boot
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list command listeners.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(4)
	go r.listCommandListener("hal:volume", r.handleVolumeCommand)
	go r.listCommandListener("hal:brightness", r.handleBrightnessCommand)
	go r.listCommandListener("hal:power", r.handlePowerCommand)
	go r.listCommandListener("hal:app", r.handleAppCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				time.Sleep(time.Second)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func parseU8(value string) (uint8, error) {
	v, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

func (r *RedisClient) handleVolumeCommand(value string) error {
	if r.callbacks.VolumeCallback == nil {
		return nil
	}
	v, err := parseU8(value)
	if err != nil {
		return fmt.Errorf("invalid volume command: %s", value)
	}
	return r.callbacks.VolumeCallback(v)
}

func (r *RedisClient) handleBrightnessCommand(value string) error {
	if r.callbacks.BrightnessCallback == nil {
		return nil
	}
	v, err := parseU8(value)
	if err != nil {
		return fmt.Errorf("invalid brightness command: %s", value)
	}
	return r.callbacks.BrightnessCallback(v)
}

func (r *RedisClient) handlePowerCommand(value string) error {
	if r.callbacks.PowerCallback == nil {
		return nil
	}
	switch value {
	case "off", "chooser":
		return r.callbacks.PowerCallback(value)
	default:
		r.logger.Infof("Invalid power command value: %s", value)
		return fmt.Errorf("invalid power command: %s", value)
	}
}

func (r *RedisClient) handleAppCommand(value string) error {
	if r.callbacks.AppCallback == nil {
		return nil
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid app command: %s", value)
	}
	return r.callbacks.AppCallback(id)
}

// publishHashSet is a helper that atomically updates a hash field and publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) PublishButtons(mask types.ButtonMask) error {
	r.logger.Debugf("Publishing buttons: %s", mask)
	if err := r.publishHashSet(HalHash, "buttons", mask.String(), HalHash, "buttons"); err != nil {
		return fmt.Errorf("failed to publish buttons: %w", err)
	}
	return nil
}

func (r *RedisClient) PublishState(state types.InitState) error {
	r.logger.Infof("Publishing HAL state: %s", state)
	if err := r.publishHashSet(HalHash, "state", string(state), HalHash, "state"); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}
	return nil
}

// CurrentApp returns the id of the running app, if any.
func (r *RedisClient) CurrentApp() (int, bool, error) {
	value, err := r.client.HGet(r.ctx, AppsHash, "current").Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get current app: %w", err)
	}
	id, err := strconv.Atoi(value)
	if err != nil || id < 0 {
		return 0, false, nil
	}
	return id, true, nil
}

func (r *RedisClient) AppName(id int) (string, error) {
	value, err := r.client.HGet(r.ctx, AppsHash, strconv.Itoa(id)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no app with id %d", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get name of app %d: %w", id, err)
	}
	return value, nil
}

// OpenNamespace opens the settings namespace name, stored as one hash.
func (r *RedisClient) OpenNamespace(name string) (settings.KV, error) {
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to open namespace %s: %w", name, err)
	}
	return newNamespace(redisHashStore{r.client}, nvsPrefix+name), nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
