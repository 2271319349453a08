package db

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDriverName is the driver registered with per-connection pragmas applied
const SQLiteDriverName = "sqlite3_pagination"

const busyTimeoutMS = 5000

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Several processes may share one file when changes travel over NATS
			_, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS), nil)
			return err
		},
	})
}
