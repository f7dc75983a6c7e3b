package bus

// Canonical bus topics, per spec.md §6. Publish normalizes case, but call
// sites should use these constants to avoid typos.
const (
	TopicUDPReceived       = "UDP_RECEIVED"
	TopicTCPReceived       = "TCP_RECEIVED"
	TopicHTTPReceived      = "HTTP_RECEIVED"
	TopicWebSocketReceived = "WEBSOCKET_RECEIVED"
	TopicMQTTReceived      = "MQTT_RECEIVED"

	TopicDataParsed     = "DATA_PARSED"
	TopicRoutingDecided = "ROUTING_DECIDED"
	TopicForwardResult  = "FORWARD_RESULT"
	TopicErrorOccurred  = "ERROR_OCCURRED"

	TopicMetricsPrefix = "METRICS_"

	// TopicAnyReceived subscribes to every protocol's *_RECEIVED topic.
	TopicAnyReceived = "*_RECEIVED"
)

// ReceivedTopicForProtocol maps a source protocol name to its ingress topic.
func ReceivedTopicForProtocol(protocol string) string {
	switch normalizeTopic(protocol) {
	case "UDP":
		return TopicUDPReceived
	case "TCP":
		return TopicTCPReceived
	case "HTTP":
		return TopicHTTPReceived
	case "WEBSOCKET":
		return TopicWebSocketReceived
	case "MQTT":
		return TopicMQTTReceived
	default:
		return normalizeTopic(protocol) + "_RECEIVED"
	}
}
