package eventbus

import (
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

func TestBus_PublishInline(t *testing.T) {
	bus := New(discardLogger())
	defer bus.Close()

	var got []interface{}
	bus.Subscribe("topic", func(e interface{}) { got = append(got, e) })
	bus.Subscribe("other", func(e interface{}) { t.Fatal("must not be called") })

	bus.Publish("topic", 1)
	bus.Publish("topic", 2)

	assert.Equal(t, []interface{}{1, 2}, got)
}

func TestBus_InlineOrderFollowsRegistration(t *testing.T) {
	bus := New(discardLogger())
	defer bus.Close()

	var order []string
	bus.Subscribe("topic", func(interface{}) { order = append(order, "first") })
	bus.Subscribe("topic", func(interface{}) { order = append(order, "second") })

	bus.Publish("topic", struct{}{})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_BlockingSubscriberDoesNotStallPublisher(t *testing.T) {
	bus := New(discardLogger())

	release := make(chan struct{})
	var mu sync.Mutex
	var got []interface{}

	bus.Subscribe("topic", func(e interface{}) {
		<-release
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, WithBlocking())

	published := make(chan struct{})
	go func() {
		bus.Publish("topic", "a")
		bus.Publish("topic", "b")
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publisher was blocked by a blocking subscriber")
	}

	close(release)
	bus.Close()

	assert.Equal(t, []interface{}{"a", "b"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(discardLogger())
	defer bus.Close()

	calls := 0
	s := bus.Subscribe("topic", func(interface{}) { calls++ })

	bus.Publish("topic", nil)
	s.Unsubscribe()
	bus.Publish("topic", nil)

	assert.Equal(t, 1, calls)
}

func TestBus_HandlerPanicIsRecovered(t *testing.T) {
	bus := New(discardLogger())
	defer bus.Close()

	calls := 0
	bus.Subscribe("topic", func(interface{}) { panic("boom") })
	bus.Subscribe("topic", func(interface{}) { calls++ })

	assert.NotPanics(t, func() { bus.Publish("topic", nil) })
	assert.Equal(t, 1, calls)
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New(discardLogger())

	calls := 0
	bus.Subscribe("topic", func(interface{}) { calls++ })
	bus.Close()

	bus.Publish("topic", nil)

	assert.Equal(t, 0, calls)
}
