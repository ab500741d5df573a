package sitewatch

import (
	"errors"
)

var ErrConfig = errors.New("the configuration is invalid")
var ErrSnapshotCorrupt = errors.New("the persisted snapshot is unreadable")
var ErrFetchFailed = errors.New("the site could not be fetched")
var ErrNotifyFailed = errors.New("the notification could not be delivered")
