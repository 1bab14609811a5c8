package contracts

import "sort"

type Topic string

const (
	TopicUserEvents                    Topic = "user-events"
	TopicSongEvents                    Topic = "song-events"
	TopicPreferencesAndAnalyticsEvents Topic = "preferences-and-analytics-events"
)

var topicByEvent = map[EventType]Topic{
	UserCreated:  TopicUserEvents,
	UserUpdated:  TopicUserEvents,
	UserDeleted:  TopicUserEvents,
	SongCreated:  TopicSongEvents,
	SongUpdated:  TopicSongEvents,
	SongDeleted:  TopicSongEvents,
	SongStreamed: TopicPreferencesAndAnalyticsEvents,
	SongLiked:    TopicPreferencesAndAnalyticsEvents,
	SongUnliked:  TopicPreferencesAndAnalyticsEvents,
}

func TopicFor(t EventType) (Topic, bool) {
	topic, ok := topicByEvent[t]
	return topic, ok
}

func KnownEventType(v string) bool {
	_, ok := topicByEvent[EventType(v)]
	return ok
}

func KnownTopic(v string) bool {
	for _, t := range Topics() {
		if string(t) == v {
			return true
		}
	}
	return false
}

func Topics() []Topic {
	return []Topic{TopicUserEvents, TopicSongEvents, TopicPreferencesAndAnalyticsEvents}
}

func EventTypesFor(topic Topic) []EventType {
	out := make([]EventType, 0, 4)
	for t, tp := range topicByEvent {
		if tp == topic {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubscriptionName is the durable cursor name a consuming service uses on a
// topic. It embeds the service so two consumers never share a cursor.
func SubscriptionName(service string, topic Topic) string {
	return string(topic) + "." + service
}
