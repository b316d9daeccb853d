package main

import (
	"flag"
	"log"
	"os"
	"reflect"

	"github.com/robotalks/nwp.go/pkg/bridge/mqtt"
	"github.com/robotalks/nwp.go/pkg/bridge/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/nwp/"
	topic   = "#"
)

func init() {
	if val := os.Getenv("NWP_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&topic, "topic", topic, "Topic filter, e.g. HOST-ID/event.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Sub(topic, func(topic string, payload []byte) {
		rec, err := msgs.Decode(payload)
		if err != nil {
			log.Printf("%s: bad record: %v", topic, err)
			return
		}
		log.Printf("%s: [%s] %s", topic, reflect.Indirect(reflect.ValueOf(rec)).Type().Name(), rec.String())
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
