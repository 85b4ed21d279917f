package model

import "time"

// Episode is a show episode that featured one or more restaurants.
type Episode struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	Season          int        `json:"season"`
	EpisodeNumber   int        `json:"episode_number"`
	AirDate         *time.Time `json:"air_date,omitempty"`
	Description     string     `json:"description,omitempty"`
	MetaDescription string     `json:"meta_description,omitempty"`
	RestaurantIDs   []string   `json:"restaurant_ids,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// City is a directory city page record.
type City struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Description     string    `json:"description,omitempty"`
	RestaurantCount int       `json:"restaurant_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
