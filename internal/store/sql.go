package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Driver names accepted by OpenSQL.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

var schemas = map[string][]string{
	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS Accounts (
			ID INT AUTO_INCREMENT PRIMARY KEY,
			Username VARCHAR(64) NOT NULL UNIQUE,
			Password VARCHAR(255) NOT NULL,
			Session VARCHAR(128) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Rooms (
			ID INT AUTO_INCREMENT PRIMARY KEY,
			Name VARCHAR(128) NOT NULL,
			Description TEXT NOT NULL,
			Password VARCHAR(255) NOT NULL,
			Creator INT NOT NULL,
			FOREIGN KEY (Creator) REFERENCES Accounts(ID)
		)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS Accounts (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			Username TEXT NOT NULL UNIQUE,
			Password TEXT NOT NULL,
			Session TEXT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Rooms (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			Name TEXT NOT NULL,
			Description TEXT NOT NULL,
			Password TEXT NOT NULL,
			Creator INTEGER NOT NULL REFERENCES Accounts(ID)
		)`,
	},
}

// SQLStore implements Store on database/sql.
// Queries use '?' placeholders, which both supported drivers accept.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens a database handle for driver and verifies it is reachable.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLStore(db, driver), nil
}

// NewSQLStore wraps an existing handle.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.driver] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateAccount(ctx context.Context, username, passwordHash string) (Account, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO Accounts (Username, Password) VALUES (?, ?)",
		username, passwordHash)
	if err != nil {
		if isDuplicate(err) {
			return Account{}, ErrDuplicate
		}
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, fmt.Errorf("failed to read account id: %w", err)
	}
	return Account{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

func (s *SQLStore) AccountByUsername(ctx context.Context, username string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT ID, Username, Password, Session FROM Accounts WHERE Username = ?",
		username)

	var (
		acc     Account
		session sql.NullString
	)
	if err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	if session.Valid {
		acc.Session = &session.String
	}
	return acc, nil
}

func (s *SQLStore) SetSession(ctx context.Context, accountID int64, session *string) error {
	var value sql.NullString
	if session != nil {
		value = sql.NullString{String: *session, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE Accounts SET Session = ? WHERE ID = ?",
		value, accountID); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateRoom(ctx context.Context, name, description, passwordHash string, creator int64) (Room, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO Rooms (Name, Description, Password, Creator) VALUES (?, ?, ?, ?)",
		name, description, passwordHash, creator)
	if err != nil {
		return Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Room{}, fmt.Errorf("failed to read room id: %w", err)
	}
	return Room{
		ID:           id,
		Name:         name,
		Description:  description,
		PasswordHash: passwordHash,
		Creator:      creator,
	}, nil
}

func (s *SQLStore) Room(ctx context.Context, id int64) (Room, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT ID, Name, Description, Password, Creator FROM Rooms WHERE ID = ?",
		id)

	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (s *SQLStore) Rooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ID, Name, Description, Password, Creator FROM Rooms ORDER BY ID")
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list rooms: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (Room, error) {
	var room Room
	err := row.Scan(&room.ID, &room.Name, &room.Description, &room.PasswordHash, &room.Creator)
	return room, err
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
