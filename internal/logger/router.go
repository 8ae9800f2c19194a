package logger

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type route struct {
	formatter logrus.Formatter
	out       io.Writer
}

// channelRouter is a logrus hook writing each entry to the route of its
// channel. Entries without a channel take the op route.
type channelRouter struct {
	user route
	op   route

	// Workers log concurrently; keep lines whole.
	mu sync.Mutex
}

func (r *channelRouter) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (r *channelRouter) Fire(entry *logrus.Entry) error {
	rt := r.op
	if ch, _ := entry.Data[channelKey].(string); ch == string(UserChannel) {
		rt = r.user
		if mark, _ := entry.Data[markKey].(string); mark != "" {
			entry.Message = mark + " " + entry.Message
		}
	}

	line, err := rt.formatter.Format(entry)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = rt.out.Write(line)
	return err
}
