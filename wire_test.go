package wire

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"

	"github.com/latticedb/pgwire/pkg/mock"
)

// TListenAndServe starts server on a loopback port picked by the OS and
// registers its teardown, returning the address for test clients to dial.
func TListenAndServe(t *testing.T, server *Server) *net.TCPAddr {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, server.Close())
	})

	go server.Serve(listener) //nolint:errcheck

	return listener.Addr().(*net.TCPAddr)
}

// TNewServer constructs a Server fronting a fresh in-memory engine for the
// duration of the test.
func TNewServer(t *testing.T, opts ...OptionFn) *Server {
	t.Helper()

	all := append([]OptionFn{Logger(mock.NewTestLogger(t))}, opts...)
	server, err := NewServer(":memory:", all...)
	require.NoError(t, err)

	return server
}

func TestClientConnect(t *testing.T) {
	t.Parallel()

	server := TNewServer(t)
	address := TListenAndServe(t, server)

	t.Run("lib/pq", func(t *testing.T) {
		connstr := fmt.Sprintf("host=%s port=%d sslmode=disable", address.IP, address.Port)
		conn, err := sql.Open("postgres", connstr)
		require.NoError(t, err)
		require.NoError(t, conn.Ping())
		require.NoError(t, conn.Close())
	})

	t.Run("jackc/pgx", func(t *testing.T) {
		ctx := context.Background()
		connstr := fmt.Sprintf("postgres://%s:%d", address.IP, address.Port)
		conn, err := pgx.Connect(ctx, connstr)
		require.NoError(t, err)
		require.NoError(t, conn.Ping(ctx))
		require.NoError(t, conn.Close(ctx))
	})
}

func TestServerSimpleQueryRoundTrip(t *testing.T) {
	t.Parallel()

	server := TNewServer(t)
	address := TListenAndServe(t, server)

	connstr := fmt.Sprintf("host=%s port=%d sslmode=disable", address.IP, address.Port)
	conn, err := sql.Open("postgres", connstr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)")
	require.NoError(t, err)

	_, err = conn.Exec("INSERT INTO person (name, age) VALUES ('John', 28), ('Marry', 21)")
	require.NoError(t, err)

	rows, err := conn.Query("SELECT name, age FROM person ORDER BY age")
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var name string
		var age int
		require.NoError(t, rows.Scan(&name, &age))
		got = append(got, fmt.Sprintf("%s:%d", name, age))
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"Marry:21", "John:28"}, got)
}

func TestServerPreparedStatementRoundTrip(t *testing.T) {
	t.Parallel()

	server := TNewServer(t)
	address := TListenAndServe(t, server)

	ctx := context.Background()
	connstr := fmt.Sprintf("postgres://%s:%d", address.IP, address.Port)
	conn, err := pgx.Connect(ctx, connstr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(ctx) })

	_, err = conn.Exec(ctx, "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)")
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "INSERT INTO person (name, age) VALUES ($1, $2)", "John", 28)
	require.NoError(t, err)

	rows, err := conn.Query(ctx, "SELECT name FROM person WHERE age > $1", 20)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"John"}, names)
}

func TestServerHandlingMultipleConnections(t *testing.T) {
	t.Parallel()

	server := TNewServer(t)
	address := TListenAndServe(t, server)

	connstr := fmt.Sprintf("host=%s port=%d sslmode=disable", address.IP, address.Port)
	conn, err := sql.Open("postgres", connstr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec("CREATE TABLE person (id INTEGER PRIMARY KEY, age INTEGER)")
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO person (age) VALUES (30)")
	require.NoError(t, err)

	t.Run("simple query", func(t *testing.T) {
		rows, err := conn.Query("select age from person")
		require.NoError(t, err)
		t.Cleanup(func() { rows.Close() })
		require.True(t, rows.Next())
		require.NoError(t, rows.Err())
	})

	t.Run("prepared statement", func(t *testing.T) {
		stmt, err := conn.Prepare("select age from person where age > $1")
		require.NoError(t, err)
		t.Cleanup(func() { stmt.Close() })

		rows, err := stmt.Query(1)
		require.NoError(t, err)
		t.Cleanup(func() { rows.Close() })
		require.True(t, rows.Next())
		require.NoError(t, rows.Err())
	})
}

func TestServerNULLValues(t *testing.T) {
	t.Parallel()

	server := TNewServer(t)
	address := TListenAndServe(t, server)

	connstr := fmt.Sprintf("host=%s port=%d sslmode=disable", address.IP, address.Port)
	conn, err := sql.Open("postgres", connstr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec("CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO person (name) VALUES ('John'), (NULL)")
	require.NoError(t, err)

	rows, err := conn.Query("SELECT name FROM person ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var result []*string
	for rows.Next() {
		var name *string
		require.NoError(t, rows.Scan(&name))
		result = append(result, name)
	}
	require.NoError(t, rows.Err())
	require.Len(t, result, 2)
	require.NotNil(t, result[0])
	require.Equal(t, "John", *result[0])
	require.Nil(t, result[1])
}
