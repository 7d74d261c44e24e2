package constants

import "time"

const CHUNK_SIZE_BYTES = 1024

const NUM_PARTITIONS = 100

const CLIENT_PORT = 41236

const REPAIR_INTERVAL = 100 * time.Millisecond

const REQUEST_INTERVAL = 1000 * time.Millisecond

const SESSION_IDLE_TIMEOUT = 30 * time.Second

const ENCODED_CACHE_SIZE = 512
