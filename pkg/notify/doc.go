// Package notify announces enqueued jobs over watermill so a scheduler
// in any process can tick right away instead of waiting for its next
// periodic trigger. Transport is an in-process go channel or AMQP.
package notify
