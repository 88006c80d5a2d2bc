package broker

// Topic layout on the BuildTrack broker. Endpoints are MAC-style
// hardware keys; there is no shared prefix.

// statusTopic is where a controller reports pin state.
func statusTopic(endpoint string) string {
	return endpoint + "/status"
}

// executeTopic is where a controller accepts commands.
func executeTopic(endpoint string) string {
	return endpoint + "/execute"
}
