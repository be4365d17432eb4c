package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/lib/pq"
	"github.com/pingcap/errors"
	"go.uber.org/multierr"

	"github.com/specialistvlad/unloadcopy/internal/config"
)

// Cluster is one warehouse endpoint. Its connection pool is opened on first
// use and shared by every resource and task that points at the cluster.
type Cluster struct {
	Host     string
	Port     int
	Database string
	User     string
	password string
	sslMode  string

	once sync.Once
	db   *sql.DB
	err  error
}

// NewCluster creates a cluster from a job endpoint.
func NewCluster(ep config.Endpoint) *Cluster {
	sslMode := ep.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return &Cluster{
		Host:     ep.ClusterEndpoint,
		Port:     ep.ClusterPort,
		Database: ep.Database,
		User:     ep.ConnectUser,
		password: ep.ConnectPwd,
		sslMode:  sslMode,
	}
}

// NewClusterWithDB creates a cluster over an already open pool.
func NewClusterWithDB(host, database string, db *sql.DB) *Cluster {
	c := &Cluster{Host: host, Port: config.DefaultClusterPort, Database: database, db: db}
	c.once.Do(func() {})
	return c
}

// String identifies the cluster without credentials.
func (c *Cluster) String() string {
	return fmt.Sprintf("%s/%s", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
}

// DSN returns the lib/pq connection URL.
func (c *Cluster) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.sslMode}}.Encode(),
	}
	return u.String()
}

// DB returns the cluster's connection pool, opening it if needed.
func (c *Cluster) DB() (*sql.DB, error) {
	c.once.Do(func() {
		connector, err := pq.NewConnector(c.DSN())
		if err != nil {
			c.err = errors.Annotatef(err, "invalid connection settings for %s", c)
			return
		}
		c.db = sql.OpenDB(connector)
	})
	return c.db, c.err
}

// Ping verifies that the cluster accepts connections.
func (c *Cluster) Ping(ctx context.Context) error {
	db, err := c.DB()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.Annotatef(err, "cluster %s is unreachable", c)
	}
	return nil
}

// Close releases the connection pool.
func (c *Cluster) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CloseAll closes every cluster and combines their errors.
func CloseAll(clusters ...*Cluster) error {
	var err error
	for _, c := range clusters {
		err = multierr.Append(err, c.Close())
	}
	return err
}
