package based

/*
Based is the client side protocol layer of a graph database. It turns writes into modify buffers and reads into query
buffers, both encoded against a compiled schema, and hands them to the engine over an opaque request channel.

The engine may change its schema at any time. A query built against an outdated schema is answered with a one byte
stale marker; the client then rebuilds the query against the newest schema and sends it again, so callers only ever see
results that match the schema they were encoded with.

The `based` module is organized into the following packages:

* `schema`: compiled field descriptors and schema snapshots, compiled from YAML definitions.
* `modify`: the modify buffer encoder, which writes set, partial set, increment and decrement commands.
* `query`: query definitions that collect validation errors instead of failing, and the query buffer registrar.
* `client`: the coordinator that batches writes, resolves pending ids and runs queries until their schema is current.
* `config`, `logutil`: toml configuration and logger setup.
*/
