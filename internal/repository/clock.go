package repository

import "time"

// nowFunc is swapped in tests that need a fixed clock.
var nowFunc = time.Now
