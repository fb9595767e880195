package snowflake

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake is a decoded id.
type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42
	timestampPos          = 64 - timestampLength                  // 22
	workerLength    int64 = 10                                    // 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12

	maxWorkerValue    = int64(1)<<workerLength - 1
	maxIncrementValue = int64(1)<<incrementLength - 1
)

// MaxWorkerID is the largest worker id a generator accepts.
const MaxWorkerID = maxWorkerValue

// Generator hands out ids that are strictly increasing for a single worker:
// later calls always get bigger ids, which is what message ordering relies on
// to break createdAt ties.
type Generator struct {
	mutex         sync.Mutex
	workerID      int64
	lastTimestamp int64
	lastIncrement int64
	now           func() time.Time
}

func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerValue {
		return nil, fmt.Errorf("worker ID value must be between 0 and [%d]", maxWorkerValue)
	}
	return &Generator{workerID: workerID, now: time.Now}, nil
}

func (g *Generator) Generate() int64 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	timestamp := g.now().UnixMilli()
	if timestamp < g.lastTimestamp {
		// clock went backwards, stay on the last timestamp so ids keep growing
		timestamp = g.lastTimestamp
	}

	if timestamp == g.lastTimestamp {
		g.lastIncrement++
		if g.lastIncrement > maxIncrementValue {
			// increment overflow, borrow the next millisecond
			timestamp++
			g.lastIncrement = 0
		}
	} else {
		g.lastIncrement = 0
	}
	g.lastTimestamp = timestamp

	return timestamp<<timestampPos | g.workerID<<workerPos | g.lastIncrement
}

var defaultGenerator, _ = NewGenerator(0)

// Setup replaces the package level generator used by Generate.
func Setup(workerID int64) error {
	g, err := NewGenerator(workerID)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

func Generate() int64 {
	return defaultGenerator.Generate()
}

func Extract(snowflakeID int64) Snowflake {
	return Snowflake{
		Timestamp: snowflakeID >> timestampPos,
		WorkerID:  (snowflakeID >> workerPos) & maxWorkerValue,
		Increment: snowflakeID & maxIncrementValue,
	}
}

func ExtractTime(snowflakeID int64) time.Time {
	return time.UnixMilli(snowflakeID >> timestampPos)
}
