package storage

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/storage/database"
	inmemdb "github.com/akcent-academy/crm/storage/database/inmem"
	sqlxrepos "github.com/akcent-academy/crm/storage/database/sqlx"
)

const (
	Postgres = "postgres"
	Memory   = "memory"
)

// Stores holds the repositories of the configured storage engine.
type Stores struct {
	DB     *sqlx.DB // nil in memory mode
	Mem    *inmemdb.DB
	Record attendance.Repository
	Roster attendance.RosterProvider
	Groups attendance.GroupDirectory
}

// Open sets up the storage selected by conf.Storage. Postgres databases are created
// and migrated when migrate is true.
func Open(conf *core.Config, migrate bool) (*Stores, error) {
	switch conf.Storage {
	case Memory:
		return NewMemory(inmemdb.Open()), nil
	case Postgres, "":
		if migrate {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
		}
		db, err := database.Connect(conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = database.Migrate(db.DB); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Stores{
			DB:     db,
			Record: sqlxrepos.NewRecordRepository(db),
			Roster: sqlxrepos.NewRosterRepository(db),
			Groups: sqlxrepos.NewGroupRepository(db),
		}, nil
	default:
		return nil, errors.Errorf("unknown storage %q", conf.Storage)
	}
}

func NewMemory(mem *inmemdb.DB) *Stores {
	return &Stores{
		Mem:    mem,
		Record: inmemdb.NewRecordRepository(mem),
		Roster: inmemdb.NewRosterRepository(mem),
		Groups: inmemdb.NewGroupRepository(mem),
	}
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
