package axelar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/events"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/metrics"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
)

// EventSource is a started tendermint websocket client. *rpchttp.HTTP implements it.
type EventSource interface {
	Subscribe(ctx context.Context, subscriber, query string, outCapacity ...int) (<-chan ctypes.ResultEvent, error)
	UnsubscribeAll(ctx context.Context, subscriber string) error
	Health(ctx context.Context) (*ctypes.ResultHealth, error)
	Stop() error
}

type dialFunc func(wsUrl string) (EventSource, error)

func dialWebsocket(wsUrl string) (EventSource, error) {
	client, err := rpchttp.New(wsUrl, "/websocket")
	if err != nil {
		return nil, err
	}
	if err := client.Start(); err != nil {
		return nil, err
	}
	return client, nil
}

type sink func(ctx context.Context, evt ctypes.ResultEvent)

// topicTask owns the websocket connection of one query and fans events out to its sinks.
type topicTask struct {
	mutex sync.RWMutex
	sinks []sink
}

func (t *topicTask) add(s sink) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.sinks = append(t.sinks, s)
}

func (t *topicTask) deliver(ctx context.Context, evt ctypes.ResultEvent) {
	t.mutex.RLock()
	sinks := make([]sink, len(t.sinks))
	copy(sinks, t.sinks)
	t.mutex.RUnlock()
	for _, s := range sinks {
		s(ctx, evt)
	}
}

// AxelarListener subscribes to hub event queries, one websocket connection per query.
type AxelarListener struct {
	wsUrl      string
	maxRetries int
	timeout    time.Duration
	retryDelay time.Duration
	heartbeat  time.Duration
	dial       dialFunc
	sleep      func(ctx context.Context, d time.Duration) error
	mutex      sync.Mutex
	topics     map[string]*topicTask
	errs       chan error
}

func NewAxelarListener(axelarConfig *config.AxelarConfig) *AxelarListener {
	return &AxelarListener{
		wsUrl:      axelarConfig.WsUrl,
		maxRetries: axelarConfig.WsMaxRetries,
		timeout:    axelarConfig.GetWsTimeout(),
		retryDelay: axelarConfig.GetRetryDelay(),
		heartbeat:  axelarConfig.GetWsTimeout(),
		dial:       dialWebsocket,
		sleep:      sleepContext,
		topics:     make(map[string]*topicTask),
		errs:       make(chan error, 8),
	}
}

// Errors receives the error of a topic task that gave up reconnecting.
func (l *AxelarListener) Errors() <-chan error {
	return l.errs
}

// Listen parses every event of spec's query and publishes the results to subject.
// A query already listened to reuses its connection.
func Listen[T any](ctx context.Context, l *AxelarListener, spec ListenerEvent[T], subject *events.Subject[T]) {
	handle := func(ctx context.Context, evt ctypes.ResultEvent) {
		if evt.Query != spec.TopicId {
			log.Debug().Str("query", evt.Query).Str("topic", spec.TopicId).
				Msg("[AxelarListener] [Listen] event query does not match the topic, dropped")
			return
		}
		parsed, err := spec.Parser(ctx, evt.Events)
		if err != nil {
			metrics.EventParseErrors.WithLabelValues("axelar", spec.Type).Inc()
			log.Error().Err(err).Str("topic", spec.TopicId).Msg("[AxelarListener] [Listen] failed to parse event")
			return
		}
		for _, item := range parsed {
			metrics.EventsReceived.WithLabelValues("axelar", spec.Type).Inc()
			subject.Publish(item)
		}
	}
	l.mutex.Lock()
	task, ok := l.topics[spec.TopicId]
	if !ok {
		task = &topicTask{}
		l.topics[spec.TopicId] = task
	}
	task.add(handle)
	l.mutex.Unlock()
	if ok {
		log.Info().Str("type", spec.Type).Msg("[AxelarListener] [Listen] reusing existing subscription")
		return
	}
	log.Info().Str("type", spec.Type).Msg("[AxelarListener] [Listen] listening to hub event")
	go func() {
		if err := l.run(ctx, spec.TopicId, task); err != nil {
			log.Error().Err(err).Str("topic", spec.TopicId).Msg("[AxelarListener] [Listen] subscription stopped")
			select {
			case l.errs <- err:
			default:
			}
		}
	}()
}

// run keeps one subscription alive. It gives up after maxRetries consecutive failed connects.
func (l *AxelarListener) run(ctx context.Context, topic string, task *topicTask) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := l.subscribeOnce(ctx, topic, task)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			log.Warn().Err(err).Str("topic", topic).Int("failures", failures).
				Msg("[AxelarListener] [run] hub connection failed")
		} else {
			failures = 0
		}
		if failures > l.maxRetries {
			return fmt.Errorf("hub subscription %q failed %d times: %w", topic, failures, err)
		}
		metrics.ListenerReconnects.WithLabelValues(topic).Inc()
		if err := l.sleep(ctx, l.retryDelay); err != nil {
			return nil
		}
	}
}

// subscribeOnce connects, subscribes and consumes events until the connection dies.
// It returns nil when a working connection was lost, so the failure count restarts.
func (l *AxelarListener) subscribeOnce(ctx context.Context, topic string, task *topicTask) error {
	source, err := l.dial(l.wsUrl)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.wsUrl, err)
	}
	defer source.Stop() //nolint:errcheck
	subscriber := fmt.Sprintf("%s-%s", config.APP_NAME, uuid.NewString())
	subscribeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	eventCh, err := source.Subscribe(subscribeCtx, subscriber, topic)
	cancel()
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}
	defer source.UnsubscribeAll(context.Background(), subscriber) //nolint:errcheck
	log.Info().Str("topic", topic).Str("subscriber", subscriber).Msg("[AxelarListener] [subscribeOnce] subscribed")
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-eventCh:
			if !ok {
				log.Info().Str("topic", topic).Msg("[AxelarListener] [subscribeOnce] event channel closed, reconnecting")
				return nil
			}
			task.deliver(ctx, evt)
		case <-ticker.C:
			healthCtx, cancel := context.WithTimeout(ctx, l.timeout)
			_, err := source.Health(healthCtx)
			cancel()
			if err != nil {
				log.Info().Err(err).Str("topic", topic).Msg("[AxelarListener] [subscribeOnce] hub node is dead, reconnecting")
				return nil
			}
		}
	}
}
