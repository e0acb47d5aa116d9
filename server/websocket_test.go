package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RomiChan/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/ycvk/go-essence/global"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// fakeOneBot 推送一个事件, 并按 action 回应 API 调用
func fakeOneBot(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"post_type":"notice","notice_type":"essence","sub_type":"add"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req := gjson.ParseBytes(data)
			echo := req.Get("echo").Raw
			var resp string
			switch req.Get("action").String() {
			case "get_msg":
				resp = `{"status":"ok","retcode":0,"data":{"message_id":` + req.Get("params.message_id").Raw + `},"echo":` + echo + `}`
			case "fail":
				resp = `{"status":"failed","retcode":100,"wording":"nope","echo":` + echo + `}`
			default:
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(resp))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type result struct {
	data gjson.Result
	err  error
}

func TestClientCallAPI(t *testing.T) {
	srv := fakeOneBot(t, "secret")
	results := make(chan []result, 1)
	var c *Client
	c = NewClient(Options{
		Address:          wsURL(srv),
		AccessToken:      "secret",
		APITimeout:       100 * time.Millisecond,
		RateLimitEnabled: true,
		RateLimitFreq:    100,
		RateLimitBucket:  5,
	}, func(ev gjson.Result) {
		assert.Equal(t, "essence", ev.Get("notice_type").String())
		ctx := context.Background()
		var rs []result
		for _, action := range []string{"get_msg", "fail", "silent"} {
			data, err := c.CallAPI(ctx, action, global.MSG{"message_id": 42})
			rs = append(rs, result{data, err})
		}
		results <- rs
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var rs []result
	select {
	case rs = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("event handler did not finish")
	}
	require.NoError(t, rs[0].err)
	assert.Equal(t, int64(42), rs[0].data.Get("message_id").Int())
	assert.True(t, errors.Is(rs[1].err, ErrAPIFailed))
	assert.Contains(t, rs[1].err.Error(), "nope")
	assert.True(t, errors.Is(rs[2].err, ErrAPITimeout))

	cancel()
	assert.NoError(t, <-done)

	_, err := c.CallAPI(context.Background(), "get_msg", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClientGivesUp(t *testing.T) {
	srv := fakeOneBot(t, "secret")
	c := NewClient(Options{
		Address:           wsURL(srv),
		AccessToken:       "wrong",
		ReconnectDelay:    5 * time.Millisecond,
		ReconnectMaxTimes: 2,
	}, nil)
	err := c.Run(context.Background())
	assert.True(t, errors.Is(err, ErrGiveUp))
}

func TestClientStopsWhileWaiting(t *testing.T) {
	c := NewClient(Options{
		Address:        "ws://127.0.0.1:1",
		ReconnectDelay: time.Hour,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}
