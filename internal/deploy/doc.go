// Package deploy hands built IceCubes to IOC hosts over MQTT.
//
// A host publishes an IceCube document (JSON, the same format the CLI
// reads) to icetray/request/build. The Service builds it through the
// catalogue, publishes the record database, protocol file and canonical
// document as retained messages under icetray/artifact/{name}/..., and
// reports the outcome on icetray/response/build/{name}.
//
// Cubes built through the API or CLI are published with Publish so that
// every cube in the catalogue has current retained artifacts. Deleting a
// cube publishes empty retained payloads (Retract).
//
// On the IOC host, an Agent subscribes to the artifact topics and mirrors
// them into its artifact directory, removing files on retraction.
package deploy
