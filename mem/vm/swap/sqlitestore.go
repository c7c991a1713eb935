package swap

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/sim"
)

// InMemoryDB can be passed as the path of a SQLiteStore that should not
// touch the disk.
const InMemoryDB = ":memory:"

// A SQLiteStore is a BackingStore that keeps pages in a SQLite database, so
// the swap area survives the simulated machine.
type SQLiteStore struct {
	*sql.DB

	pageSize    int
	path        string
	readStmt    *sql.Stmt
	writeStmt   *sql.Stmt
	releaseStmt *sql.Stmt
}

// NewSQLiteStore opens or creates the swap database at path. An empty path
// creates a uniquely named database in the working directory.
func NewSQLiteStore(path string, pageSize int) (*SQLiteStore, error) {
	if path == "" {
		path = sim.UniqueName("vmkernel_swap_") + ".sqlite3"
		fmt.Fprintf(os.Stderr, "Swap database created: %s\n", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open swap database: %w", err)
	}

	// An in-memory database lives in a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{DB: db, pageSize: pageSize, path: path}

	err = s.createTable()
	if err != nil {
		db.Close()
		return nil, err
	}

	err = s.prepareStatements()
	if err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { s.Close() })

	return s, nil
}

func (s *SQLiteStore) createTable() error {
	_, err := s.Exec(`CREATE TABLE IF NOT EXISTS pages (
	pid INTEGER NOT NULL,
	vpn INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (pid, vpn)
);`)
	if err != nil {
		return fmt.Errorf("create swap table: %w", err)
	}

	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.readStmt, err = s.Prepare(
		`SELECT data FROM pages WHERE pid = ? AND vpn = ?`)
	if err != nil {
		return err
	}

	s.writeStmt, err = s.Prepare(
		`INSERT INTO pages (pid, vpn, data) VALUES (?, ?, ?)
		ON CONFLICT(pid, vpn) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}

	s.releaseStmt, err = s.Prepare(`DELETE FROM pages WHERE pid = ?`)

	return err
}

// Path returns the location of the database.
func (s *SQLiteStore) Path() string {
	return s.path
}

// ReadPage returns the content of a page.
func (s *SQLiteStore) ReadPage(pid vm.PID, vpn uint64) ([]byte, error) {
	var data []byte

	err := s.readStmt.QueryRow(int64(pid), int64(vpn)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vm.ErrPageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("read page %d of pid %d: %w", vpn, pid, err)
	}

	return data, nil
}

// WritePage stores one page, replacing the previous content.
func (s *SQLiteStore) WritePage(pid vm.PID, vpn uint64, data []byte) error {
	if len(data) != s.pageSize {
		return fmt.Errorf("page of %d bytes, expected %d", len(data), s.pageSize)
	}

	_, err := s.writeStmt.Exec(int64(pid), int64(vpn), data)
	if err != nil {
		return fmt.Errorf("write page %d of pid %d: %w", vpn, pid, err)
	}

	return nil
}

// ReleaseProcess deletes every page of the process.
func (s *SQLiteStore) ReleaseProcess(pid vm.PID) error {
	_, err := s.releaseStmt.Exec(int64(pid))
	if err != nil {
		return fmt.Errorf("release pages of pid %d: %w", pid, err)
	}

	return nil
}
