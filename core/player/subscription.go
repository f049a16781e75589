package player

const subscriptionBuffer = 32

// Subscription receives transport snapshots and notifications.
// Sends never block the controller: a full Changes buffer drops the
// intermediate snapshot, only the latest state matters to a UI.
type Subscription struct {
	Changes <-chan Snapshot
	Notices <-chan Notification

	changes chan Snapshot
	notices chan Notification
}

func newSubscription() *Subscription {
	changes := make(chan Snapshot, subscriptionBuffer)
	notices := make(chan Notification, subscriptionBuffer)
	return &Subscription{
		Changes: changes,
		Notices: notices,
		changes: changes,
		notices: notices,
	}
}

func (s *Subscription) sendChange(snap Snapshot) {
	select {
	case s.changes <- snap:
	default:
		// 丢弃最旧的一条再写入
		select {
		case <-s.changes:
		default:
		}
		select {
		case s.changes <- snap:
		default:
		}
	}
}

func (s *Subscription) sendNotice(n Notification) {
	select {
	case s.notices <- n:
	default:
	}
}

func (s *Subscription) close() {
	close(s.changes)
	close(s.notices)
}
