package inmemdb

import (
	"sync"

	"github.com/pavulla/kiosk/core/checkin"
)

type (
	DB struct {
		checkin *checkinTable
	}

	checkinTable struct {
		sync.RWMutex
		table map[string]*checkin.Record
	}
)

func Open() *DB {
	return &DB{
		checkin: &checkinTable{table: make(map[string]*checkin.Record)},
	}
}
