package repository

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  site_id TEXT NOT NULL DEFAULT '',
  modes TEXT NOT NULL DEFAULT '[]',
  is_bn INTEGER NOT NULL DEFAULT 0,
  is_nat INTEGER NOT NULL DEFAULT 0,
  last_updated INTEGER NOT NULL DEFAULT 0,
  favor TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS beatmaps (
  beatmap_id INTEGER PRIMARY KEY,
  beatmapset_id INTEGER NOT NULL,
  status INTEGER NOT NULL,
  total_length INTEGER NOT NULL,
  hit_length INTEGER NOT NULL,
  mode INTEGER NOT NULL,
  version TEXT NOT NULL DEFAULT '',
  artist TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  creator TEXT NOT NULL DEFAULT '',
  creator_id INTEGER NOT NULL DEFAULT 0,
  genre INTEGER NOT NULL DEFAULT 0,
  language INTEGER NOT NULL DEFAULT 0,
  difficulty_rating REAL NOT NULL DEFAULT 0,
  last_update INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS beatmaps_set_idx ON beatmaps (beatmapset_id);
CREATE TABLE IF NOT EXISTS nominations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  beatmapset_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  artist_title TEXT NOT NULL DEFAULT '',
  creator_id INTEGER NOT NULL DEFAULT 0,
  creator_name TEXT NOT NULL DEFAULT '',
  ts INTEGER NOT NULL,
  as_modes TEXT NOT NULL DEFAULT '[]',
  ambiguous INTEGER NOT NULL DEFAULT 0,
  scores TEXT NOT NULL DEFAULT '{}',
  UNIQUE (beatmapset_id, user_id)
);
CREATE INDEX IF NOT EXISTS nominations_user_ts_idx ON nominations (user_id, ts);
CREATE INDEX IF NOT EXISTS nominations_creator_ts_idx ON nominations (creator_id, ts);
CREATE TABLE IF NOT EXISTS resets (
  id TEXT PRIMARY KEY,
  beatmapset_id INTEGER NOT NULL,
  user_id INTEGER NOT NULL,
  artist_title TEXT NOT NULL DEFAULT '',
  creator_id INTEGER NOT NULL DEFAULT 0,
  creator_name TEXT NOT NULL DEFAULT '',
  ts INTEGER NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  discussion_id INTEGER NOT NULL DEFAULT 0,
  obviousness INTEGER NOT NULL DEFAULT 0,
  severity INTEGER NOT NULL DEFAULT 0,
  type TEXT NOT NULL DEFAULT '',
  UNIQUE (beatmapset_id, user_id, ts)
);
CREATE TABLE IF NOT EXISTS reset_affected (
  reset_id TEXT NOT NULL REFERENCES resets(id) ON DELETE CASCADE,
  user_id INTEGER NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (reset_id, user_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL DEFAULT '',
  site_id TEXT NOT NULL DEFAULT '',
  modes TEXT NOT NULL DEFAULT '[]',
  is_bn INTEGER NOT NULL DEFAULT 0,
  is_nat INTEGER NOT NULL DEFAULT 0,
  last_updated BIGINT NOT NULL DEFAULT 0,
  favor TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS beatmaps (
  beatmap_id BIGINT PRIMARY KEY,
  beatmapset_id BIGINT NOT NULL,
  status INTEGER NOT NULL,
  total_length INTEGER NOT NULL,
  hit_length INTEGER NOT NULL,
  mode INTEGER NOT NULL,
  version TEXT NOT NULL DEFAULT '',
  artist TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  creator TEXT NOT NULL DEFAULT '',
  creator_id BIGINT NOT NULL DEFAULT 0,
  genre INTEGER NOT NULL DEFAULT 0,
  language INTEGER NOT NULL DEFAULT 0,
  difficulty_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
  last_update BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS beatmaps_set_idx ON beatmaps (beatmapset_id);
CREATE TABLE IF NOT EXISTS nominations (
  id BIGSERIAL PRIMARY KEY,
  beatmapset_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  artist_title TEXT NOT NULL DEFAULT '',
  creator_id BIGINT NOT NULL DEFAULT 0,
  creator_name TEXT NOT NULL DEFAULT '',
  ts BIGINT NOT NULL,
  as_modes TEXT NOT NULL DEFAULT '[]',
  ambiguous INTEGER NOT NULL DEFAULT 0,
  scores TEXT NOT NULL DEFAULT '{}',
  UNIQUE (beatmapset_id, user_id)
);
CREATE INDEX IF NOT EXISTS nominations_user_ts_idx ON nominations (user_id, ts);
CREATE INDEX IF NOT EXISTS nominations_creator_ts_idx ON nominations (creator_id, ts);
CREATE TABLE IF NOT EXISTS resets (
  id TEXT PRIMARY KEY,
  beatmapset_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  artist_title TEXT NOT NULL DEFAULT '',
  creator_id BIGINT NOT NULL DEFAULT 0,
  creator_name TEXT NOT NULL DEFAULT '',
  ts BIGINT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  discussion_id BIGINT NOT NULL DEFAULT 0,
  obviousness INTEGER NOT NULL DEFAULT 0,
  severity INTEGER NOT NULL DEFAULT 0,
  type TEXT NOT NULL DEFAULT '',
  UNIQUE (beatmapset_id, user_id, ts)
);
CREATE TABLE IF NOT EXISTS reset_affected (
  reset_id TEXT NOT NULL REFERENCES resets(id) ON DELETE CASCADE,
  user_id BIGINT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (reset_id, user_id)
);
`
