package testsystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/framework/helpers"
	"github.com/proy1234/prplMesh/testsystem/testsystemmock"
	"github.com/proy1234/prplMesh/ucc"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// startEndpoint serves one command per connection, replying with whatever reply returns. A nil
// reply function never answers.
func startEndpoint(t *testing.T, reply func(command string) string) (int, <-chan string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	received := make(chan string, 10)
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		_ = listener.Close()
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				received <- line
				if reply == nil {
					<-done
					return
				}
				_, _ = io.WriteString(conn, reply(line))
			}()
		}
	}()
	return listener.Addr().(*net.TCPAddr).Port, received
}

func mockDeploymentAt(t *testing.T, device devices.DeviceType, port int) *testsystemmock.MockDeployment {
	d := testsystemmock.NewMockDeployment(gomock.NewController(t))
	d.EXPECT().IP(device).Return("127.0.0.1", nil).AnyTimes()
	d.EXPECT().Port(device).Return(port, nil).AnyTimes()
	return d
}

func TestNewRequiresDeployment(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewRejectsNegativeCommandTimeout(t *testing.T) {
	_, err := New(BaseDeployment{}, WithCommandTimeout(-time.Second))
	assert.Error(t, err)
}

func TestVerbose(t *testing.T) {
	ts, err := New(BaseDeployment{})
	require.NoError(t, err)
	assert.False(t, ts.Verbose())

	ts, err = New(BaseDeployment{}, WithVerbose(true))
	require.NoError(t, err)
	assert.True(t, ts.Verbose())
}

func TestSendCommandReturnsReply(t *testing.T) {
	port, received := startEndpoint(t, func(string) string { return "PONG\n" })
	ts, err := New(mockDeploymentAt(t, devices.Agent, port))
	require.NoError(t, err)

	reply, err := ts.SendCommand(context.Background(), devices.Agent, "PING", true)
	require.NoError(t, err)
	assert.Equal(t, "PONG", reply)
	assert.Equal(t, "PING\n", helpers.RequireValue(t, received, time.Second*5))
}

func TestSendCommandKeepsReplyUnchanged(t *testing.T) {
	const raw = " status,COMPLETE,ALid,02:9a:96:fb:59:0f ,\t"
	port, _ := startEndpoint(t, func(string) string { return raw + "\n" })
	ts, err := New(mockDeploymentAt(t, devices.Gateway, port))
	require.NoError(t, err)

	reply, err := ts.SendCommand(context.Background(), devices.Gateway, "dev_get_parameter,program,map,parameter,ALid", true)
	require.NoError(t, err)
	assert.Equal(t, raw, reply)
}

func TestSendCommandWithoutWaitDoesNotRead(t *testing.T) {
	port, received := startEndpoint(t, nil)
	ts, err := New(mockDeploymentAt(t, devices.Repeater1, port))
	require.NoError(t, err)

	started := time.Now()
	reply, err := ts.SendCommand(context.Background(), devices.Repeater1, "dev_reset_default", false)
	require.NoError(t, err)
	assert.Equal(t, "", reply)
	assert.Less(t, time.Since(started), time.Second*5)
	assert.Equal(t, "dev_reset_default\n", helpers.RequireValue(t, received, time.Second*5))
}

func TestSendCommandInvalidDevice(t *testing.T) {
	d := testsystemmock.NewMockDeployment(gomock.NewController(t)) // no calls expected
	ts, err := New(d)
	require.NoError(t, err)

	_, err = ts.SendCommand(context.Background(), devices.DeviceType(42), "PING", true)
	assert.ErrorIs(t, err, ErrNoSuchDevice)
}

func TestSendCommandPropagatesResolutionErrors(t *testing.T) {
	fail := errors.New("no address for you")

	t.Run("IP", func(t *testing.T) {
		d := testsystemmock.NewMockDeployment(gomock.NewController(t))
		d.EXPECT().IP(devices.Agent).Return("", fail)
		ts, err := New(d)
		require.NoError(t, err)

		_, err = ts.SendCommand(context.Background(), devices.Agent, "PING", true)
		assert.Equal(t, fail, err)
	})

	t.Run("Port", func(t *testing.T) {
		d := testsystemmock.NewMockDeployment(gomock.NewController(t))
		d.EXPECT().IP(devices.Agent).Return("127.0.0.1", nil)
		d.EXPECT().Port(devices.Agent).Return(0, fail)
		ts, err := New(d)
		require.NoError(t, err)

		_, err = ts.SendCommand(context.Background(), devices.Agent, "PING", true)
		assert.Equal(t, fail, err)
	})

	t.Run("base deployment", func(t *testing.T) {
		ts, err := New(BaseDeployment{})
		require.NoError(t, err)

		_, err = ts.SendCommand(context.Background(), devices.Agent, "PING", true)
		assert.ErrorIs(t, err, ErrNotImplemented)
	})
}

func TestSendCommandUnreachableDevice(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	ts, err := New(mockDeploymentAt(t, devices.Gateway, port))
	require.NoError(t, err)

	_, err = ts.SendCommand(context.Background(), devices.Gateway, "PING", true)
	var connErr *ucc.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestSendCommandTimeout(t *testing.T) {
	port, _ := startEndpoint(t, nil)

	t.Run("socket reply timeout", func(t *testing.T) {
		ts, err := New(mockDeploymentAt(t, devices.Agent, port),
			WithSocketOptions(ucc.WithReplyTimeout(time.Millisecond*50)))
		require.NoError(t, err)

		_, err = ts.SendCommand(context.Background(), devices.Agent, "PING", true)
		assert.ErrorIs(t, err, ucc.ErrTimeout)
	})

	t.Run("command timeout", func(t *testing.T) {
		ts, err := New(mockDeploymentAt(t, devices.Agent, port), WithCommandTimeout(time.Millisecond*50))
		require.NoError(t, err)

		_, err = ts.SendCommand(context.Background(), devices.Agent, "PING", true)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

type framedDeployment struct {
	*testsystemmock.MockDeployment
	framing ucc.Framing
}

func (f framedDeployment) SocketOptions(devices.DeviceType) []ucc.Option {
	return []ucc.Option{ucc.WithFraming(f.framing)}
}

func TestSendCommandUsesDeploymentSocketOptions(t *testing.T) {
	port, _ := startEndpoint(t, func(string) string { return "status,RUNNING\nstatus,COMPLETE\n" })
	ts, err := New(framedDeployment{mockDeploymentAt(t, devices.Agent, port), ucc.CAPIFraming{}})
	require.NoError(t, err)

	reply, err := ts.SendCommand(context.Background(), devices.Agent, "dev_reset_default", true)
	require.NoError(t, err)
	assert.Equal(t, "status,COMPLETE", reply)
}

func TestSendCommandLogsExchange(t *testing.T) {
	port, _ := startEndpoint(t, func(string) string { return "PONG\n" })
	logger := &framework.CapturingLogger{}
	ts, err := New(mockDeploymentAt(t, devices.Agent, port), WithLogger(logger))
	require.NoError(t, err)

	_, err = ts.SendCommand(context.Background(), devices.Agent, "PING", true)
	require.NoError(t, err)

	messages := logger.Output().Messages()
	m.In(t).Assert(messages, m.Items(
		m.AllOf(m.StringHasPrefix("[agent "), m.StringContains("Command: PING (wait=true)")),
		m.StringContains("Connected to"),
		m.StringContains("Sending command"),
		m.StringContains("Reply from"),
		m.StringContains("Closed connection"),
		m.StringContains("Reply: PONG"),
	))
}

func TestWaitForDevice(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		port, _ := startEndpoint(t, nil)
		ts, err := New(mockDeploymentAt(t, devices.Gateway, port))
		require.NoError(t, err)

		assert.NoError(t, ts.WaitForDevice(context.Background(), devices.Gateway, time.Millisecond*10))
	})

	t.Run("becomes reachable", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := listener.Addr().(*net.TCPAddr).Port
		require.NoError(t, listener.Close())

		ts, err := New(mockDeploymentAt(t, devices.Gateway, port))
		require.NoError(t, err)

		late := make(chan net.Listener, 1)
		go func() {
			time.Sleep(time.Millisecond * 100)
			l, err := net.Listen("tcp", listener.Addr().String())
			if err != nil {
				close(late)
				return
			}
			late <- l
			for {
				c, err := l.Accept()
				if err != nil {
					return
				}
				_ = c.Close()
			}
		}()
		defer func() {
			if l, ok := <-late; ok {
				_ = l.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		assert.NoError(t, ts.WaitForDevice(ctx, devices.Gateway, time.Millisecond*20))
	})

	t.Run("never reachable", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := listener.Addr().(*net.TCPAddr).Port
		require.NoError(t, listener.Close())

		ts, err := New(mockDeploymentAt(t, devices.Gateway, port))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
		defer cancel()
		err = ts.WaitForDevice(ctx, devices.Gateway, time.Millisecond*20)
		var connErr *ucc.ConnectionError
		assert.ErrorAs(t, err, &connErr)
	})
}
